package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/your-org/faceguard/internal/capture"
	"github.com/your-org/faceguard/internal/store"
)

func TestStatusMonitorDeriveNoFrameYet(t *testing.T) {
	m := &statusMonitor{}
	require.Equal(t, store.CameraStatusInactive, m.derive(time.Now(), capture.StateRunning))
}

func TestStatusMonitorDeriveActiveWithinLiveWindow(t *testing.T) {
	m := &statusMonitor{}
	now := time.Now()
	m.touch(now)
	require.Equal(t, store.CameraStatusActive, m.derive(now.Add(2*time.Second), capture.StateRunning))
}

func TestStatusMonitorDeriveInactiveAfterLiveWindow(t *testing.T) {
	m := &statusMonitor{}
	now := time.Now()
	m.touch(now)
	require.Equal(t, store.CameraStatusInactive, m.derive(now.Add(DefaultLiveWindow+time.Second), capture.StateRunning))
}

func TestStatusMonitorDeriveErrorWhenDegradedAndStale(t *testing.T) {
	m := &statusMonitor{}
	now := time.Now()
	m.touch(now)
	require.Equal(t, store.CameraStatusError, m.derive(now.Add(DefaultLiveWindow+time.Second), capture.StateDegraded))
}

func TestStatusMonitorDeriveFailedIsAlwaysError(t *testing.T) {
	m := &statusMonitor{}
	now := time.Now()
	m.touch(now)
	require.Equal(t, store.CameraStatusError, m.derive(now, capture.StateFailed))
}

func TestStatusMonitorDeriveStoppedIsDisconnected(t *testing.T) {
	m := &statusMonitor{}
	require.Equal(t, store.CameraStatusDisconnected, m.derive(time.Now(), capture.StateStopped))
}
