package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/faceguard/internal/capture"
	"github.com/your-org/faceguard/internal/store"
)

// DefaultLiveWindow is T_live: a camera is "active" iff its Frame Source
// produced a frame within this window, per spec.md §3.
const DefaultLiveWindow = 10 * time.Second

// DefaultStatusPollInterval is how often the status monitor re-evaluates
// a camera's liveness between frames, so a source that stops producing
// frames without closing its channel is still noticed.
const DefaultStatusPollInterval = 2 * time.Second

// CameraStatusRepo is the subset of store.CameraRepo the status monitor
// depends on.
type CameraStatusRepo interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status store.CameraStatus) error
}

// statusMonitor tracks one camera's last-frame time and keeps the durable
// CameraRepo status in sync with the Frame Source's lifecycle, per
// spec.md §4.4 ("the Pipeline Supervisor learns of state changes and
// updates Camera.status via CameraRepo::set_status").
type statusMonitor struct {
	lastFrameAtNano atomic.Int64
}

// touch records that a frame was just received, for the liveness check
// in derive.
func (m *statusMonitor) touch(at time.Time) {
	m.lastFrameAtNano.Store(at.UnixNano())
}

func (m *statusMonitor) live(now time.Time) bool {
	last := m.lastFrameAtNano.Load()
	if last == 0 {
		return false
	}
	return now.Sub(time.Unix(0, last)) <= DefaultLiveWindow
}

// derive maps a source's lifecycle state plus frame recency onto the
// durable Camera.status enum. A source that is Failed or Stopped is
// always reported as error/disconnected regardless of recency; otherwise
// status tracks strictly whether a frame has arrived within the live
// window, matching spec.md §3's invariant.
func (m *statusMonitor) derive(now time.Time, state capture.State) store.CameraStatus {
	switch state {
	case capture.StateStopped:
		return store.CameraStatusDisconnected
	case capture.StateFailed:
		return store.CameraStatusError
	}
	if m.live(now) {
		return store.CameraStatusActive
	}
	if state == capture.StateDegraded {
		return store.CameraStatusError
	}
	return store.CameraStatusInactive
}

// run polls the source's state until ctx is cancelled, pushing a status
// update to repo whenever the derived status changes. It marks the
// camera disconnected on exit so a Supervisor shutdown is observable in
// the durable store without waiting on the next poll. A nil repo makes
// this a no-op, for callers (tests) that don't care about status
// propagation.
func (m *statusMonitor) run(ctx context.Context, cameraID uuid.UUID, source capture.Source, repo CameraStatusRepo) {
	if repo == nil {
		return
	}
	ticker := time.NewTicker(DefaultStatusPollInterval)
	defer ticker.Stop()

	var last store.CameraStatus
	for {
		select {
		case <-ctx.Done():
			bg, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := repo.UpdateStatus(bg, cameraID, store.CameraStatusDisconnected); err != nil {
				slog.Warn("pipeline: mark camera disconnected on shutdown", "camera_id", cameraID, "error", err)
			}
			return
		case now := <-ticker.C:
			status := m.derive(now, source.State())
			if status == last {
				continue
			}
			if err := repo.UpdateStatus(ctx, cameraID, status); err != nil {
				slog.Warn("pipeline: update camera status", "camera_id", cameraID, "error", err)
				continue
			}
			last = status
		}
	}
}
