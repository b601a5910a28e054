package janitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/your-org/faceguard/internal/eventbus"
	"github.com/your-org/faceguard/internal/store"
)

type fakeRecordings struct {
	mu      sync.Mutex
	records []*store.Recording
}

func (f *fakeRecordings) Create(ctx context.Context, r *store.Recording) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, r)
	return nil
}
func (f *fakeRecordings) Get(ctx context.Context, id uuid.UUID) (*store.Recording, error) {
	return nil, &store.NotFound{Kind: "recording", ID: id.String()}
}
func (f *fakeRecordings) Update(ctx context.Context, r *store.Recording) error { return nil }
func (f *fakeRecordings) ListByCamera(ctx context.Context, cameraID uuid.UUID, limit, offset int) ([]*store.Recording, error) {
	return nil, nil
}
func (f *fakeRecordings) ListCompletedOldestFirst(ctx context.Context, limit int) ([]*store.Recording, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.Recording
	for _, r := range f.records {
		if r.Status == store.RecordingStatusCompleted {
			out = append(out, r)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
func (f *fakeRecordings) ListInterrupted(ctx context.Context) ([]*store.Recording, error) {
	return nil, nil
}
func (f *fakeRecordings) Delete(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.records {
		if r.ID == id {
			f.records = append(f.records[:i], f.records[i+1:]...)
			return nil
		}
	}
	return &store.NotFound{Kind: "recording", ID: id.String()}
}
func (f *fakeRecordings) TotalSizeBytes(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total int64
	for _, r := range f.records {
		total += r.SizeBytes
	}
	return total, nil
}

type fakeObjects struct {
	mu      sync.Mutex
	deleted []string
}

func (f *fakeObjects) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	return nil
}

type fakeSettings struct{ cfg store.RecordingConfig }

func (f *fakeSettings) Get(ctx context.Context) (*store.Settings, error) {
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

func makeRecording(age time.Duration, size int64, status store.RecordingStatus) *store.Recording {
	return &store.Recording{
		ID:        uuid.New(),
		FileRef:   "recordings/" + uuid.New().String() + ".mjpeg",
		SizeBytes: size,
		Status:    status,
		StartedAt: time.Now().Add(-age),
	}
}

func TestSweepSkipsWhenNoQuotaConfigured(t *testing.T) {
	recordings := &fakeRecordings{}
	objects := &fakeObjects{}
	settings := &fakeSettings{cfg: store.RecordingConfig{MaxStorageBytes: 0}}
	bus := &fakeBus{}

	j := New(recordings, objects, settings, bus, time.Hour)
	result, err := j.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, result.Deleted)
}

func TestSweepWarnsAboveNinetyPercent(t *testing.T) {
	recordings := &fakeRecordings{records: []*store.Recording{
		makeRecording(100*24*time.Hour, 950, store.RecordingStatusCompleted),
	}}
	objects := &fakeObjects{}
	settings := &fakeSettings{cfg: store.RecordingConfig{
		MaxStorageBytes: 1000, AutoCleanup: false,
	}}
	bus := &fakeBus{}

	j := New(recordings, objects, settings, bus, time.Hour)
	result, err := j.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, bus.count(eventbus.TypeStorageWarning))
	require.Equal(t, 0, result.Deleted, "auto_cleanup disabled: warn only, never evict")
}

func TestSweepEvictsOldestUntilUnderTarget(t *testing.T) {
	recordings := &fakeRecordings{records: []*store.Recording{
		makeRecording(100*24*time.Hour, 400, store.RecordingStatusCompleted),
		makeRecording(90*24*time.Hour, 400, store.RecordingStatusCompleted),
		makeRecording(80*24*time.Hour, 400, store.RecordingStatusCompleted),
	}}
	objects := &fakeObjects{}
	settings := &fakeSettings{cfg: store.RecordingConfig{
		MaxStorageBytes:      1000,
		AutoCleanup:          true,
		CleanupTargetPercent: 50,
		MinRetentionDays:     30,
	}}
	bus := &fakeBus{}

	j := New(recordings, objects, settings, bus, time.Hour)
	result, err := j.Sweep(context.Background())
	require.NoError(t, err)
	require.GreaterOrEqual(t, result.Deleted, 2)
	require.LessOrEqual(t, result.UsageBytes, int64(500))
	require.Len(t, objects.deleted, result.Deleted)
}

func TestSweepNeverDeletesWithinMinRetention(t *testing.T) {
	recordings := &fakeRecordings{records: []*store.Recording{
		makeRecording(1*24*time.Hour, 950, store.RecordingStatusCompleted), // too young
	}}
	objects := &fakeObjects{}
	settings := &fakeSettings{cfg: store.RecordingConfig{
		MaxStorageBytes:      1000,
		AutoCleanup:          true,
		CleanupTargetPercent: 50,
		MinRetentionDays:     30,
	}}
	bus := &fakeBus{}

	j := New(recordings, objects, settings, bus, time.Hour)
	result, err := j.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, result.Deleted)
	require.Equal(t, 1, result.SkippedByAge)
}
