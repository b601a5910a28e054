package recording

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/your-org/faceguard/internal/capture"
	"github.com/your-org/faceguard/internal/eventbus"
	"github.com/your-org/faceguard/internal/janitor"
	"github.com/your-org/faceguard/internal/store"
)

type fakeRecordings struct {
	mu      sync.Mutex
	created []*store.Recording
	updated []*store.Recording
}

func (f *fakeRecordings) Create(ctx context.Context, r *store.Recording) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, r)
	return nil
}
func (f *fakeRecordings) Get(ctx context.Context, id uuid.UUID) (*store.Recording, error) {
	return nil, &store.NotFound{Kind: "recording", ID: id.String()}
}
func (f *fakeRecordings) Update(ctx context.Context, r *store.Recording) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, r)
	return nil
}
func (f *fakeRecordings) ListByCamera(ctx context.Context, cameraID uuid.UUID, limit, offset int) ([]*store.Recording, error) {
	return nil, nil
}
func (f *fakeRecordings) ListCompletedOldestFirst(ctx context.Context, limit int) ([]*store.Recording, error) {
	return nil, nil
}
func (f *fakeRecordings) ListInterrupted(ctx context.Context) ([]*store.Recording, error) {
	return nil, nil
}
func (f *fakeRecordings) Delete(ctx context.Context, id uuid.UUID) error { return nil }
func (f *fakeRecordings) TotalSizeBytes(ctx context.Context) (int64, error) {
	return 0, nil
}

type fakeSettings struct {
	mu  sync.Mutex
	cfg store.RecordingConfig
}

func (f *fakeSettings) Get(ctx context.Context) (*store.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &store.Settings{Recording: f.cfg}, nil
}

type fakeBus struct {
	mu     sync.Mutex
	events []eventbus.DomainEvent
}

func (f *fakeBus) Publish(evt eventbus.DomainEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
}

func (f *fakeBus) count(t eventbus.Type) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type fakeSweeper struct {
	mu      sync.Mutex
	swept   int
	sweptCh chan struct{}
}

func (s *fakeSweeper) Sweep(ctx context.Context) (janitor.CleanupResult, error) {
	s.mu.Lock()
	s.swept++
	s.mu.Unlock()
	if s.sweptCh != nil {
		select {
		case s.sweptCh <- struct{}{}:
		default:
		}
	}
	return janitor.CleanupResult{}, nil
}

type fakeWriter struct {
	mu       sync.Mutex
	data     []byte
	finalize bool
	aborted  bool
	failNext bool
}

func (w *fakeWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failNext {
		return 0, errors.New("disk full")
	}
	w.data = append(w.data, p...)
	return len(p), nil
}
func (w *fakeWriter) Finalize(ctx context.Context, contentType string) error {
	w.finalize = true
	return nil
}
func (w *fakeWriter) Abort() error {
	w.aborted = true
	return nil
}

func newTestController(t *testing.T, cfg store.RecordingConfig) (*Controller, *fakeRecordings, *fakeBus, *fakeWriter) {
	t.Helper()
	recordings := &fakeRecordings{}
	bus := &fakeBus{}
	settings := &fakeSettings{cfg: cfg}
	writer := &fakeWriter{}

	c := New(uuid.New(), 5, t.TempDir(), recordings, nil, settings, bus, nil)
	c.openSegment = func(dir, key string) (segmentWriter, error) {
		return writer, nil
	}
	return c, recordings, bus, writer
}

func testFrame(seq int64) capture.Frame {
	return capture.Frame{Seq: seq, CapturedAt: time.Now(), Image: image.NewRGBA(image.Rect(0, 0, 4, 4))}
}

func TestIdleBuffersWithoutRecording(t *testing.T) {
	c, recordings, _, _ := newTestController(t, store.RecordingConfig{DetectionTriggered: true})
	ctx := context.Background()

	require.NoError(t, c.PushFrame(ctx, testFrame(1)))
	require.Equal(t, StateIdle, c.State())
	require.Empty(t, recordings.created)
}

func TestDetectionTriggersRecordingAndFlushesPreBuffer(t *testing.T) {
	c, recordings, bus, writer := newTestController(t, store.RecordingConfig{DetectionTriggered: true, PreTriggerSecs: 1})
	ctx := context.Background()

	f1 := testFrame(1)
	f2 := testFrame(2)
	require.NoError(t, c.PushFrame(ctx, f1))
	require.NoError(t, c.PushFrame(ctx, f2))
	require.NoError(t, c.NotifyDetection(ctx, f2.CapturedAt))

	require.Equal(t, StateRecording, c.State())
	require.Len(t, recordings.created, 1)
	require.Equal(t, store.RecordingStatusRecording, recordings.created[0].Status)
	require.Equal(t, 1, bus.count(eventbus.TypeRecordingStarted))
	require.NotEmpty(t, writer.data, "pre-trigger frame and trigger frame should both be written")
}

func TestWriteFailureTransitionsToInterrupted(t *testing.T) {
	c, _, bus, writer := newTestController(t, store.RecordingConfig{DetectionTriggered: true})
	ctx := context.Background()

	f1 := testFrame(1)
	require.NoError(t, c.PushFrame(ctx, f1))
	require.NoError(t, c.NotifyDetection(ctx, f1.CapturedAt))
	require.Equal(t, StateRecording, c.State())

	writer.failNext = true
	err := c.PushFrame(ctx, testFrame(2))
	require.Error(t, err)
	require.Equal(t, StateInterrupted, c.State())
	require.True(t, writer.aborted)
	require.Equal(t, 1, bus.count(eventbus.TypeCameraStatusChanged))
}

func TestWriteFailureKicksStorageSweep(t *testing.T) {
	recordings := &fakeRecordings{}
	bus := &fakeBus{}
	settings := &fakeSettings{cfg: store.RecordingConfig{DetectionTriggered: true}}
	writer := &fakeWriter{}
	sweeper := &fakeSweeper{sweptCh: make(chan struct{}, 1)}

	c := New(uuid.New(), 5, t.TempDir(), recordings, nil, settings, bus, sweeper)
	c.openSegment = func(dir, key string) (segmentWriter, error) {
		return writer, nil
	}
	ctx := context.Background()

	f1 := testFrame(1)
	require.NoError(t, c.PushFrame(ctx, f1))
	require.NoError(t, c.NotifyDetection(ctx, f1.CapturedAt))

	writer.failNext = true
	err := c.PushFrame(ctx, testFrame(2))
	require.Error(t, err)

	select {
	case <-sweeper.sweptCh:
	case <-time.After(2 * time.Second):
		t.Fatal("disk-full failure did not kick an out-of-band storage sweep")
	}
}

func TestInterruptedDoesNotResumeBeforeCooldown(t *testing.T) {
	c, recordings, _, writer := newTestController(t, store.RecordingConfig{DetectionTriggered: true})
	ctx := context.Background()

	f1 := testFrame(1)
	require.NoError(t, c.PushFrame(ctx, f1))
	require.NoError(t, c.NotifyDetection(ctx, f1.CapturedAt))
	writer.failNext = true
	_ = c.PushFrame(ctx, testFrame(2))
	require.Equal(t, StateInterrupted, c.State())

	require.NoError(t, c.PushFrame(ctx, testFrame(3)))
	require.NoError(t, c.NotifyDetection(ctx, time.Now()))
	require.Equal(t, StateInterrupted, c.State())
	require.Len(t, recordings.created, 1, "a second recording must not start before the cooldown elapses")
}

func TestFinalizeUpdatesRecordingRow(t *testing.T) {
	c, recordings, bus, writer := newTestController(t, store.RecordingConfig{DetectionTriggered: true})
	ctx := context.Background()

	f1 := testFrame(1)
	require.NoError(t, c.PushFrame(ctx, f1))
	require.NoError(t, c.NotifyDetection(ctx, f1.CapturedAt))
	c.Shutdown(ctx)

	require.Equal(t, StateIdle, c.State())
	require.True(t, writer.finalize)
	require.Len(t, recordings.updated, 1)
	require.Equal(t, store.RecordingStatusCompleted, recordings.updated[0].Status)
	require.Equal(t, 1, bus.count(eventbus.TypeRecordingStopped))
}
