// Package capture produces the lazy, per-camera sequence of Frames that
// feeds the rest of the pipeline (spec component C4).
package capture

import (
	"image"
	"time"

	"github.com/google/uuid"
)

// Frame is one captured image plus its provenance.
type Frame struct {
	CameraID   uuid.UUID
	Seq        int64
	CapturedAt time.Time
	Image      image.Image
	Width      int
	Height     int
}

// State is the observable lifecycle of a Source.
type State string

const (
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateDegraded State = "degraded"
	StateFailed   State = "failed"
	StateStopped  State = "stopped"
)

// DefaultQueueDepth is Q_frame, the bounded outbound channel capacity.
const DefaultQueueDepth = 4

// DefaultDegradedAfter is T_degraded: no frame within this window demotes
// a Running source to Degraded and triggers reconnection.
const DefaultDegradedAfter = 5 * time.Second

// DefaultMaxRetries is N_retry consecutive reconnect failures before a
// source gives up and transitions to Failed.
const DefaultMaxRetries = 5

// Source is a running capture task for one camera.
type Source interface {
	// Frames returns the bounded, drop-newest outbound channel. It is
	// closed by Stop; a source that reaches Failed on its own leaves it
	// open.
	Frames() <-chan Frame
	// State reports the source's current lifecycle state.
	State() State
	// DroppedFrames reports how many frames were discarded because the
	// outbound channel was full.
	DroppedFrames() int64
	// Stop requests a graceful shutdown within a bounded grace period,
	// releasing the capture handle. Partial frames are never emitted.
	Stop()
}
