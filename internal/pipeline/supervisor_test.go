package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/your-org/faceguard/internal/capture"
	"github.com/your-org/faceguard/internal/eventbus"
	"github.com/your-org/faceguard/internal/recording"
	"github.com/your-org/faceguard/internal/store"
)

// fakeSource is a capture.Source that never emits frames until closed,
// so these tests exercise the task graph's two shutdown paths (channel
// close, ctx cancellation) without needing a real detector or batcher.
type fakeSource struct {
	out     chan capture.Frame
	stopped chan struct{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{out: make(chan capture.Frame), stopped: make(chan struct{})}
}

func (s *fakeSource) Frames() <-chan capture.Frame { return s.out }
func (s *fakeSource) State() capture.State         { return capture.StateRunning }
func (s *fakeSource) DroppedFrames() int64         { return 0 }
func (s *fakeSource) Stop() {
	select {
	case <-s.stopped:
	default:
		close(s.stopped)
		close(s.out)
	}
}

type fakeRecordings struct{}

func (fakeRecordings) Create(ctx context.Context, r *store.Recording) error { return nil }
func (fakeRecordings) Get(ctx context.Context, id uuid.UUID) (*store.Recording, error) {
	return nil, &store.NotFound{Kind: "recording", ID: id.String()}
}
func (fakeRecordings) Update(ctx context.Context, r *store.Recording) error { return nil }
func (fakeRecordings) ListByCamera(ctx context.Context, cameraID uuid.UUID, limit, offset int) ([]*store.Recording, error) {
	return nil, nil
}
func (fakeRecordings) ListCompletedOldestFirst(ctx context.Context, limit int) ([]*store.Recording, error) {
	return nil, nil
}
func (fakeRecordings) ListInterrupted(ctx context.Context) ([]*store.Recording, error) {
	return nil, nil
}
func (fakeRecordings) Delete(ctx context.Context, id uuid.UUID) error    { return nil }
func (fakeRecordings) TotalSizeBytes(ctx context.Context) (int64, error) { return 0, nil }

type fakeSettings struct{}

func (fakeSettings) Get(ctx context.Context) (*store.Settings, error) {
	return &store.Settings{Detection: store.DetectionConfig{ProcessEveryNFrames: 1}}, nil
}

type fakeBus struct{}

func (fakeBus) Publish(evt eventbus.DomainEvent) {}

func newTestControllerAndSupervisor(t *testing.T) (*Supervisor, *recording.Controller) {
	t.Helper()
	controller := recording.New(uuid.New(), 5, t.TempDir(), fakeRecordings{}, nil, fakeSettings{}, fakeBus{}, nil)
	sup := New(nil, nil, nil, fakeSettings{}, nil, nil)
	return sup, controller
}

func TestStartCameraRejectsDuplicateStart(t *testing.T) {
	sup, controller := newTestControllerAndSupervisor(t)
	cameraID := uuid.New()
	source := newFakeSource()
	defer source.Stop()

	require.NoError(t, sup.StartCamera(cameraID, source, controller))
	err := sup.StartCamera(cameraID, newFakeSource(), controller)
	require.Error(t, err)

	sup.StopCamera(cameraID)
}

func TestStopCameraDrainsOnSourceChannelClose(t *testing.T) {
	sup, controller := newTestControllerAndSupervisor(t)
	cameraID := uuid.New()
	source := newFakeSource()

	require.NoError(t, sup.StartCamera(cameraID, source, controller))

	done := make(chan struct{})
	go func() {
		sup.StopCamera(cameraID)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("StopCamera did not return; task graph shutdown deadlocked")
	}
	require.Equal(t, recording.StateIdle, controller.State())
}

func TestStopCameraDrainsOnContextCancelWhenSourceNeverCloses(t *testing.T) {
	sup, controller := newTestControllerAndSupervisor(t)
	cameraID := uuid.New()

	// A source whose Stop never closes its channel, forcing runCamera to
	// rely solely on ctx.Done() to unwind.
	blocking := &blockingSource{out: make(chan capture.Frame)}

	require.NoError(t, sup.StartCamera(cameraID, blocking, controller))

	done := make(chan struct{})
	go func() {
		sup.StopCamera(cameraID)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("StopCamera did not return via ctx cancellation path")
	}
}

type blockingSource struct {
	mu  sync.Mutex
	out chan capture.Frame
}

func (s *blockingSource) Frames() <-chan capture.Frame { return s.out }
func (s *blockingSource) State() capture.State         { return capture.StateRunning }
func (s *blockingSource) DroppedFrames() int64         { return 0 }
func (s *blockingSource) Stop()                        {}
