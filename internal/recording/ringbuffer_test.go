package recording

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/your-org/faceguard/internal/capture"
)

func TestRingBufferDropsOldestWhenFull(t *testing.T) {
	rb := newRingBuffer(3)
	cameraID := uuid.New()
	for i := int64(1); i <= 5; i++ {
		rb.Write(capture.Frame{CameraID: cameraID, Seq: i})
	}
	require.Equal(t, 3, rb.Len())

	drained := rb.Drain()
	require.Len(t, drained, 3)
	require.Equal(t, []int64{3, 4, 5}, []int64{drained[0].Seq, drained[1].Seq, drained[2].Seq})
	require.Equal(t, 0, rb.Len())
}

func TestRingBufferDrainPreservesCaptureOrder(t *testing.T) {
	rb := newRingBuffer(5)
	for i := int64(1); i <= 3; i++ {
		rb.Write(capture.Frame{Seq: i})
	}
	drained := rb.Drain()
	require.Len(t, drained, 3)
	for i, f := range drained {
		require.Equal(t, int64(i+1), f.Seq)
	}
}
