package pipeline

import (
	"math"
	"sync"
	"time"

	"github.com/your-org/faceguard/internal/detect"
)

// Track follows one face across frames so the pipeline can gate
// expensive re-recognition instead of embedding every detection in
// every frame. Grounded on the teacher's vision.Tracker, a simple
// SORT-like IoU tracker.
type Track struct {
	ID              int64
	BBox            [4]float32
	Landmarks       [5][2]float32
	Confidence      float32
	Hits            int
	TimeSinceUpdate int
	LastRecognized  time.Time
}

// minIoU is the minimum overlap to consider a detection a continuation
// of an existing track rather than a new face.
const minIoU = 0.3

// Tracker assigns detections to tracks within one camera's frame
// sequence.
type Tracker struct {
	mu      sync.Mutex
	tracks  map[int64]*Track
	nextID  int64
	maxAge  int
	minHits int
}

// NewTracker builds a Tracker. maxAge is the number of frames a track
// may go unmatched before eviction; minHits is the number of detections
// matched to a track (not necessarily in consecutive frames) required
// before ShouldRecognize fires.
func NewTracker(maxAge, minHits int) *Tracker {
	if maxAge <= 0 {
		maxAge = 10
	}
	if minHits <= 0 {
		minHits = 1
	}
	return &Tracker{tracks: make(map[int64]*Track), maxAge: maxAge, minHits: minHits}
}

// Update matches this frame's detections against existing tracks by
// IoU, creates tracks for unmatched detections, and evicts tracks that
// have gone stale. It returns one Track per input detection, in the
// same order as detections.
func (t *Tracker) Update(detections []detect.Detection) []*Track {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, tr := range t.tracks {
		tr.TimeSinceUpdate++
	}

	out := make([]*Track, len(detections))
	matched := make(map[int64]bool)

	for i, det := range detections {
		bestIoU := float32(minIoU)
		var bestTrack *Track
		for id, tr := range t.tracks {
			if matched[id] {
				continue
			}
			if v := iou(det.BBox, tr.BBox); v > bestIoU {
				bestIoU = v
				bestTrack = tr
			}
		}

		if bestTrack != nil {
			bestTrack.BBox = det.BBox
			bestTrack.Landmarks = det.Landmarks
			bestTrack.Confidence = det.Confidence
			bestTrack.Hits++
			bestTrack.TimeSinceUpdate = 0
			matched[bestTrack.ID] = true
			out[i] = bestTrack
			continue
		}

		t.nextID++
		tr := &Track{
			ID:         t.nextID,
			BBox:       det.BBox,
			Landmarks:  det.Landmarks,
			Confidence: det.Confidence,
			Hits:       1,
		}
		t.tracks[tr.ID] = tr
		out[i] = tr
	}

	for id, tr := range t.tracks {
		if tr.TimeSinceUpdate > t.maxAge {
			delete(t.tracks, id)
		}
	}

	return out
}

// ShouldRecognize reports whether embedding should run for track this
// frame: a track needs minHits matched detections before its first
// recognition, and thereafter is re-recognized at most once per
// interval.
func (t *Tracker) ShouldRecognize(track *Track, interval time.Duration) bool {
	if track.Hits < t.minHits {
		return false
	}
	if track.LastRecognized.IsZero() {
		return true
	}
	return time.Since(track.LastRecognized) >= interval
}

func iou(a, b [4]float32) float32 {
	x1 := float32(math.Max(float64(a[0]), float64(b[0])))
	y1 := float32(math.Max(float64(a[1]), float64(b[1])))
	x2 := float32(math.Min(float64(a[2]), float64(b[2])))
	y2 := float32(math.Min(float64(a[3]), float64(b[3])))

	intersection := float32(math.Max(0, float64(x2-x1))) * float32(math.Max(0, float64(y2-y1)))
	areaA := (a[2] - a[0]) * (a[3] - a[1])
	areaB := (b[2] - b[0]) * (b[3] - b[1])
	union := areaA + areaB - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}
