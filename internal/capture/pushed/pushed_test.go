package pushed

import (
	"image"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/your-org/faceguard/internal/capture"
)

func TestPushDeliversFrame(t *testing.T) {
	s := New(Config{CameraID: uuid.New()})
	defer s.Stop()

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	s.Push(img, time.Now())

	select {
	case f := <-s.Frames():
		require.Equal(t, int64(1), f.Seq)
		require.Equal(t, 4, f.Width)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for pushed frame")
	}
	require.Equal(t, capture.StateRunning, s.State())
}

func TestPushDropsWhenChannelFull(t *testing.T) {
	s := New(Config{CameraID: uuid.New()})
	defer s.Stop()

	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for i := 0; i < capture.DefaultQueueDepth+2; i++ {
		s.Push(img, time.Now())
	}
	require.Greater(t, s.DroppedFrames(), int64(0))
}

func TestIdleTimeoutMarksFailed(t *testing.T) {
	s := New(Config{CameraID: uuid.New(), IdleAfter: 50 * time.Millisecond})
	defer s.Stop()

	require.Eventually(t, func() bool {
		return s.State() == capture.StateFailed
	}, time.Second, 10*time.Millisecond)
}
