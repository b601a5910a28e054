// Package recording implements the per-camera recording state machine:
// pre-trigger buffering, segment bookkeeping, and sighting-to-recording
// linkage (spec component C9).
package recording

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/faceguard/internal/capture"
	"github.com/your-org/faceguard/internal/eventbus"
	"github.com/your-org/faceguard/internal/janitor"
	"github.com/your-org/faceguard/internal/objectstore"
	"github.com/your-org/faceguard/internal/observability"
	"github.com/your-org/faceguard/internal/recognize"
	"github.com/your-org/faceguard/internal/store"
)

// State is the recording state machine's current phase.
type State string

const (
	StateIdle        State = "idle"
	StateRecording   State = "recording"
	StateFinalizing  State = "finalizing"
	StateInterrupted State = "interrupted"
)

// DefaultInterruptCooldown is how long the controller waits after a
// write failure before attempting to record again.
const DefaultInterruptCooldown = 5 * time.Second

// Publisher is the subset of the event bus the controller depends on.
type Publisher interface {
	Publish(evt eventbus.DomainEvent)
}

// SettingsSource reads the live recording configuration.
type SettingsSource interface {
	Get(ctx context.Context) (*store.Settings, error)
}

// StorageSweeper lets the controller request an out-of-band Storage
// Janitor sweep the moment a disk-write failure is observed, instead of
// waiting for the janitor's own periodic timer. Satisfied by
// *janitor.Janitor.
type StorageSweeper interface {
	Sweep(ctx context.Context) (janitor.CleanupResult, error)
}

// kickSweepTimeout bounds the out-of-band sweep kicked on a disk-full
// failure; it runs detached from the triggering call so a slow sweep
// never holds the controller's lock.
const kickSweepTimeout = 30 * time.Second

// segmentWriter is the subset of *objectstore.SegmentWriter the
// controller depends on, extracted so tests can substitute a fake
// without a live object store.
type segmentWriter interface {
	Write(p []byte) (int, error)
	Finalize(ctx context.Context, contentType string) error
	Abort() error
}

// Controller owns one camera's recording state machine.
type Controller struct {
	cameraID   uuid.UUID
	targetFPS  int
	scratchDir string

	recordings  store.RecordingRepo
	openSegment func(dir, key string) (segmentWriter, error)
	settings    SettingsSource
	bus         Publisher
	sweeper     StorageSweeper

	mu               sync.Mutex
	state            State
	ring             *ringBuffer
	current          *activeSegment
	lastDetectionAt  time.Time
	interruptedUntil time.Time

	stop chan struct{}
	once sync.Once
}

type activeSegment struct {
	recording     *store.Recording
	writer        segmentWriter
	startedAt     time.Time
	frameCount    int64
	byteCount     int64
	hasDetections bool
}

// New builds a Controller for one camera. targetFPS sizes the pre-
// trigger ring buffer together with Settings.Recording.PreTriggerSecs.
// sweeper is optional: a nil sweeper means a disk-full failure waits for
// the Storage Janitor's own periodic timer instead of kicking it early.
func New(cameraID uuid.UUID, targetFPS int, scratchDir string, recordings store.RecordingRepo, objects *objectstore.Store, settings SettingsSource, bus Publisher, sweeper StorageSweeper) *Controller {
	if targetFPS <= 0 {
		targetFPS = 5
	}
	c := &Controller{
		cameraID:   cameraID,
		targetFPS:  targetFPS,
		scratchDir: scratchDir,
		recordings: recordings,
		openSegment: func(dir, key string) (segmentWriter, error) {
			return objects.OpenForAppend(dir, key)
		},
		settings: settings,
		bus:      bus,
		sweeper:  sweeper,
		state:    StateIdle,
		ring:     newRingBuffer(targetFPS * 10),
		stop:     make(chan struct{}),
	}
	return c
}

// State reports the controller's current phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ActiveRecording reports the in-flight recording's ID and the
// wall-clock offset since it started, so a caller can stamp a Sighting
// with recording_id/offset_ms. ok is false when idle, finalizing, or
// interrupted.
func (c *Controller) ActiveRecording(at time.Time) (id uuid.UUID, offsetMS int64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRecording || c.current == nil {
		return uuid.UUID{}, 0, false
	}
	return c.current.recording.ID, at.Sub(c.current.startedAt).Milliseconds(), true
}

// Run starts the background ticker that evaluates post-trigger timeouts
// and max-segment rollover. It returns once ctx is done or Close is
// called.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// Close stops the background ticker. It does not finalize an in-flight
// segment; callers that want a clean shutdown should call Shutdown.
func (c *Controller) Close() {
	c.once.Do(func() { close(c.stop) })
}

// PushFrame feeds every captured frame (bypassing detector frame-skip)
// into either the pre-trigger buffer or the active segment. It never
// starts a recording by itself — NotifyDetection drives the Idle ->
// Recording transition, since detection completes asynchronously,
// sometimes a frame or more after PushFrame has already buffered it.
func (c *Controller) PushFrame(ctx context.Context, frame capture.Frame) error {
	settings, err := c.settings.Get(ctx)
	if err != nil {
		return fmt.Errorf("recording: load settings: %w", err)
	}
	cfg := settings.Recording

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateIdle, StateInterrupted:
		c.resizeRingLocked(maxInt(1, cfg.PreTriggerSecs*c.targetFPS))
		c.ring.Write(frame)
		return nil

	case StateRecording:
		return c.writeFrameLocked(frame)

	default: // Finalizing
		return nil
	}
}

// NotifyDetection reports that a detector run found at least one face
// at the given timestamp. It drives the Idle/Interrupted -> Recording
// transition and keeps an in-flight segment's has_detections flag
// current.
func (c *Controller) NotifyDetection(ctx context.Context, at time.Time) error {
	settings, err := c.settings.Get(ctx)
	if err != nil {
		return fmt.Errorf("recording: load settings: %w", err)
	}
	cfg := settings.Recording

	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastDetectionAt = at

	switch c.state {
	case StateIdle:
		if cfg.DetectionTriggered {
			return c.startRecordingLocked(ctx, at)
		}
		return nil

	case StateInterrupted:
		if cfg.DetectionTriggered && time.Now().After(c.interruptedUntil) {
			return c.startRecordingLocked(ctx, at)
		}
		return nil

	case StateRecording:
		c.current.hasDetections = true
		return nil

	default: // Finalizing
		return nil
	}
}

// resizeRingLocked grows or shrinks the pre-trigger buffer to match a
// live Settings change, preserving as many of the most recent buffered
// frames as fit in the new capacity. It is a no-op when the capacity is
// unchanged, so steady-state Idle frames accumulate normally.
func (c *Controller) resizeRingLocked(capacity int) {
	if c.ring != nil && c.ring.cap == capacity {
		return
	}
	resized := newRingBuffer(capacity)
	if c.ring != nil {
		for _, f := range c.ring.Drain() {
			resized.Write(f)
		}
	}
	c.ring = resized
}

func (c *Controller) startRecordingLocked(ctx context.Context, at time.Time) error {
	rec := &store.Recording{
		ID:        uuid.New(),
		CameraID:  c.cameraID,
		Status:    store.RecordingStatusRecording,
		StartedAt: at,
	}
	key := fmt.Sprintf("recordings/%s/%s.mjpeg", c.cameraID, rec.ID)
	rec.FileRef = key

	writer, err := c.openSegment(c.scratchDir, key)
	if err != nil {
		return c.failLocked(ctx, fmt.Errorf("recording: open segment: %w", err))
	}
	if err := c.recordings.Create(ctx, rec); err != nil {
		_ = writer.Abort()
		return fmt.Errorf("recording: create row: %w", err)
	}

	c.current = &activeSegment{recording: rec, writer: writer, startedAt: at}
	c.state = StateRecording
	observability.RecordingActive.Inc()

	c.bus.Publish(eventbus.RecordingStarted(c.cameraID, rec.ID))

	for _, buffered := range c.ring.Drain() {
		if err := c.writeFrameLocked(buffered); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) writeFrameLocked(frame capture.Frame) error {
	if c.current == nil {
		return nil
	}
	data := recognize.EncodeJPEG(frame.Image, 85)
	if _, err := c.current.writer.Write(lengthPrefix(len(data))); err != nil {
		return c.failLockedNoCtx(err)
	}
	if _, err := c.current.writer.Write(data); err != nil {
		return c.failLockedNoCtx(err)
	}
	c.current.frameCount++
	c.current.byteCount += int64(len(data)) + 4
	return nil
}

func (c *Controller) failLockedNoCtx(writeErr error) error {
	slog.Error("recording write failed", "camera_id", c.cameraID, "error", writeErr)
	if c.current != nil {
		_ = c.current.writer.Abort()
	}
	c.state = StateInterrupted
	c.interruptedUntil = time.Now().Add(DefaultInterruptCooldown)
	c.current = nil
	observability.RecordingActive.Dec()
	c.bus.Publish(eventbus.CameraStatusChanged(c.cameraID, store.CameraStatusError))
	c.kickSweep()
	return fmt.Errorf("recording: write failed: %w", writeErr)
}

func (c *Controller) failLocked(ctx context.Context, err error) error {
	slog.Error("recording failed", "camera_id", c.cameraID, "error", err)
	c.state = StateInterrupted
	c.interruptedUntil = time.Now().Add(DefaultInterruptCooldown)
	c.bus.Publish(eventbus.CameraStatusChanged(c.cameraID, store.CameraStatusError))
	c.kickSweep()
	return err
}

// kickSweep requests an out-of-band Storage Janitor sweep on a disk-full
// failure, per spec.md's "a full disk is surfaced to the Storage
// Janitor" / "Storage Janitor is kicked immediately" requirement
// (spec.md §4.9/§7), instead of waiting for the janitor's own periodic
// timer (up to DefaultInterval / 60s away). Runs detached in its own
// goroutine with a bounded timeout since failLocked/failLockedNoCtx are
// always called with c.mu held.
func (c *Controller) kickSweep() {
	if c.sweeper == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), kickSweepTimeout)
		defer cancel()
		if _, err := c.sweeper.Sweep(ctx); err != nil {
			slog.Warn("recording: kicked janitor sweep failed", "camera_id", c.cameraID, "error", err)
		}
	}()
}

func (c *Controller) tick(ctx context.Context) {
	settings, err := c.settings.Get(ctx)
	if err != nil {
		slog.Warn("recording: load settings for tick", "error", err)
		return
	}
	cfg := settings.Recording

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRecording || c.current == nil {
		return
	}

	now := time.Now()
	postTrigger := time.Duration(cfg.PostTriggerSecs) * time.Second
	maxSegment := time.Duration(cfg.MaxSegmentSecs) * time.Second

	noDetectionFor := now.Sub(c.lastDetectionAt)
	segmentAge := now.Sub(c.current.startedAt)

	restartAfterRollover := false
	switch {
	case maxSegment > 0 && segmentAge >= maxSegment:
		restartAfterRollover = noDetectionFor < postTrigger
	case postTrigger > 0 && noDetectionFor >= postTrigger:
	default:
		return
	}

	c.finalizeLocked(ctx)
	if restartAfterRollover {
		_ = c.startRecordingLocked(ctx, now)
	}
}

func (c *Controller) finalizeLocked(ctx context.Context) {
	seg := c.current
	if seg == nil {
		return
	}
	c.state = StateFinalizing
	c.current = nil
	observability.RecordingActive.Dec()

	if err := seg.writer.Finalize(ctx, "video/x-motion-jpeg"); err != nil {
		slog.Error("recording: finalize upload", "camera_id", c.cameraID, "error", err)
		seg.recording.Status = store.RecordingStatusInterrupted
	} else {
		seg.recording.Status = store.RecordingStatusCompleted
	}

	endedAt := time.Now()
	seg.recording.EndedAt = &endedAt
	seg.recording.DurationMS = endedAt.Sub(seg.startedAt).Milliseconds()
	seg.recording.FrameCount = seg.frameCount
	seg.recording.SizeBytes = seg.byteCount
	seg.recording.HasDetections = seg.hasDetections

	if err := c.recordings.Update(ctx, seg.recording); err != nil {
		slog.Error("recording: update row", "camera_id", c.cameraID, "error", err)
	}

	c.bus.Publish(eventbus.RecordingStopped(c.cameraID, seg.recording.ID))
	c.state = StateIdle
}

// Shutdown finalizes any in-flight segment so the row does not linger in
// the Recording state across a clean restart.
func (c *Controller) Shutdown(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.finalizeLocked(ctx)
	}
}

func lengthPrefix(n int) []byte {
	return []byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// RecoverInterrupted marks any recording left in the Recording or
// Interrupted state by an unclean shutdown as Interrupted with whatever
// bookkeeping the row already held, per spec.md's startup recovery
// requirement.
func RecoverInterrupted(ctx context.Context, recordings store.RecordingRepo) error {
	open, err := recordings.ListInterrupted(ctx)
	if err != nil {
		return fmt.Errorf("recording: list interrupted: %w", err)
	}
	now := time.Now()
	for _, r := range open {
		if r.Status == store.RecordingStatusInterrupted {
			continue
		}
		r.Status = store.RecordingStatusInterrupted
		r.EndedAt = &now
		if err := recordings.Update(ctx, r); err != nil {
			return fmt.Errorf("recording: mark interrupted %s: %w", r.ID, err)
		}
	}
	return nil
}
