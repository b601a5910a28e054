package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/your-org/faceguard/internal/detect"
)

func det(x1 float32) detect.Detection {
	return detect.Detection{BBox: [4]float32{x1, 10, x1 + 50, 60}, Confidence: 0.9}
}

func TestUpdateAssignsSameTrackIDAcrossOverlappingFrames(t *testing.T) {
	tr := NewTracker(10, 1)

	first := tr.Update([]detect.Detection{det(100)})
	require.Len(t, first, 1)

	second := tr.Update([]detect.Detection{det(102)}) // nearly identical bbox, high IoU
	require.Len(t, second, 1)
	require.Equal(t, first[0].ID, second[0].ID)
}

func TestUpdateAssignsNewTrackForDistantDetection(t *testing.T) {
	tr := NewTracker(10, 1)

	first := tr.Update([]detect.Detection{det(100)})
	second := tr.Update([]detect.Detection{det(500)})

	require.NotEqual(t, first[0].ID, second[0].ID)
}

func TestUpdateEvictsStaleTracks(t *testing.T) {
	tr := NewTracker(2, 1)

	first := tr.Update([]detect.Detection{det(100)})
	id := first[0].ID

	for i := 0; i < 5; i++ {
		tr.Update(nil)
	}

	tr.mu.Lock()
	_, exists := tr.tracks[id]
	tr.mu.Unlock()
	require.False(t, exists, "track should be evicted after exceeding maxAge")
}

func TestShouldRecognizeRequiresMinHits(t *testing.T) {
	tr := NewTracker(10, 3)
	tracks := tr.Update([]detect.Detection{det(100)})
	require.False(t, tr.ShouldRecognize(tracks[0], time.Minute), "first hit is below minHits")

	tr.Update([]detect.Detection{det(101)})
	tracks = tr.Update([]detect.Detection{det(102)})
	require.True(t, tr.ShouldRecognize(tracks[0], time.Minute))
}

func TestShouldRecognizeRespectsReRecognizeInterval(t *testing.T) {
	tr := NewTracker(10, 1)
	tracks := tr.Update([]detect.Detection{det(100)})
	tracks[0].LastRecognized = time.Now()

	require.False(t, tr.ShouldRecognize(tracks[0], time.Hour))
}
