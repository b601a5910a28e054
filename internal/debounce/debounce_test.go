package debounce

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestAllowFirstSightingAlwaysPasses(t *testing.T) {
	d := New(time.Second)
	defer d.Close()

	require.True(t, d.Allow(uuid.New(), uuid.New(), time.Now()))
}

func TestAllowSuppressesWithinCooldown(t *testing.T) {
	d := New(time.Minute)
	defer d.Close()

	identityID, cameraID := uuid.New(), uuid.New()
	now := time.Now()
	require.True(t, d.Allow(identityID, cameraID, now))
	require.False(t, d.Allow(identityID, cameraID, now.Add(time.Second)))
}

func TestAllowPassesAfterCooldownElapses(t *testing.T) {
	d := New(time.Second)
	defer d.Close()

	identityID, cameraID := uuid.New(), uuid.New()
	now := time.Now()
	require.True(t, d.Allow(identityID, cameraID, now))
	require.True(t, d.Allow(identityID, cameraID, now.Add(2*time.Second)))
}

func TestAllowIsPerCameraIndependent(t *testing.T) {
	d := New(time.Minute)
	defer d.Close()

	identityID := uuid.New()
	now := time.Now()
	require.True(t, d.Allow(identityID, uuid.New(), now))
	require.True(t, d.Allow(identityID, uuid.New(), now))
}

func TestPruneEvictsEntriesOlderThanCooldown(t *testing.T) {
	d := New(time.Second)
	defer d.Close()

	identityID, cameraID := uuid.New(), uuid.New()
	now := time.Now()
	d.Allow(identityID, cameraID, now)

	d.prune(now.Add(10 * time.Second))

	d.mu.Lock()
	_, exists := d.last[key{identityID: identityID, cameraID: cameraID}]
	d.mu.Unlock()
	require.False(t, exists)
}
