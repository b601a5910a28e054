// Package matcher implements the nearest-neighbor identity matching
// decision: match an incoming embedding against the Embedding Index, or
// create a new identity when no candidate clears the threshold (spec
// component C7).
package matcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/faceguard/internal/embedding"
	"github.com/your-org/faceguard/internal/eventbus"
	"github.com/your-org/faceguard/internal/index"
	"github.com/your-org/faceguard/internal/observability"
	"github.com/your-org/faceguard/internal/recognize"
	"github.com/your-org/faceguard/internal/store"
)

// Publisher is the subset of the event bus the matcher depends on.
type Publisher interface {
	Publish(evt eventbus.DomainEvent)
}

// SnapshotStore persists the JPEG crop of a newly created identity.
type SnapshotStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// SettingsSource reads the live match threshold; Settings may change at
// runtime, so the Matcher re-reads it on every call rather than caching
// it at construction.
type SettingsSource interface {
	Get(ctx context.Context) (*store.Settings, error)
}

// Debouncer decides whether a matched sighting should be persisted, or
// merely announced as a transient FaceDetected event. Satisfied by
// *debounce.Debouncer.
type Debouncer interface {
	Allow(identityID, cameraID uuid.UUID, at time.Time) bool
	SetCooldown(cooldown time.Duration)
}

// Input is one detected-and-embedded face awaiting a match decision.
type Input struct {
	CameraID   uuid.UUID
	FrameSeq   int64
	BBox       store.BBox
	Embedding  embedding.Embedding
	CropJPEG   []byte
	DetectedAt time.Time

	// RecordingID/RecordingOffsetMS link this sighting to the camera's
	// in-flight recording, if any. RecordingID is the zero UUID when
	// the camera is not currently recording.
	RecordingID    uuid.UUID
	RecordingOffMS int64

	// Attributes is the genderage predictor's output for this crop, or
	// nil when attribute prediction is disabled for the camera.
	Attributes *recognize.Attributes
}

// Result reports the outcome of Match for the caller (the debouncer and
// the recording controller both key off IdentityID).
type Result struct {
	IdentityID uuid.UUID
	Confidence float64
	Created    bool
}

// Matcher owns the nearest-neighbor decision and the create path's
// duplicate-prevention lock.
type Matcher struct {
	idx        index.Index
	identities store.IdentityRepo
	settings   SettingsSource
	snapshots  SnapshotStore
	bus        Publisher
	debouncer  Debouncer

	// createMu serializes the match-miss -> create path so that two
	// frames arriving within microseconds of each other for the same
	// unseen face cannot both observe "no candidate" and each insert a
	// new identity. Single-node only, per spec.md's concurrency note.
	createMu sync.Mutex
}

// New builds a Matcher over the given index, identity repository,
// settings source, snapshot store, event publisher, and cooldown
// debouncer.
func New(idx index.Index, identities store.IdentityRepo, settings SettingsSource, snapshots SnapshotStore, bus Publisher, debouncer Debouncer) *Matcher {
	return &Matcher{idx: idx, identities: identities, settings: settings, snapshots: snapshots, bus: bus, debouncer: debouncer}
}

// Match runs the nearest-neighbor decision for one detected face: on a
// hit it reports the matched identity; on a miss it snapshots the crop,
// creates a new unknown identity, and inserts it into the index.
func (m *Matcher) Match(ctx context.Context, in Input) (Result, error) {
	settings, err := m.settings.Get(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("matcher: load settings: %w", err)
	}
	threshold := settings.Detection.MatchThreshold
	if m.debouncer != nil && settings.Detection.SightingCooldownSecs > 0 {
		m.debouncer.SetCooldown(time.Duration(settings.Detection.SightingCooldownSecs) * time.Second)
	}

	matches, err := m.idx.Nearest(ctx, in.Embedding, 1, threshold)
	if err != nil {
		return Result{}, fmt.Errorf("matcher: nearest: %w", err)
	}
	if len(matches) > 0 {
		return m.onMatch(ctx, matches[0], in, threshold)
	}

	return m.onMiss(ctx, in, threshold)
}

func (m *Matcher) onMatch(ctx context.Context, match index.Match, in Input, threshold float64) (Result, error) {
	confidence := DistanceToConfidence(match.Distance, threshold)

	m.bus.Publish(eventbus.FaceDetected(match.IdentityID, in.CameraID, in.BBox, confidence))

	if m.debouncer != nil && !m.debouncer.Allow(match.IdentityID, in.CameraID, in.DetectedAt) {
		return Result{IdentityID: match.IdentityID, Confidence: confidence}, nil
	}

	sighting := store.Sighting{
		ID:         uuid.New(),
		IdentityID: match.IdentityID,
		CameraID:   in.CameraID,
		Confidence: confidence,
		BBox:       in.BBox,
		DetectedAt: in.DetectedAt,
	}
	attachRecordingLink(&sighting, in)
	attachAttributes(&sighting, in)
	err := store.Retry(ctx, func(ctx context.Context) error {
		return m.identities.RecordSighting(ctx, match.IdentityID, sighting)
	})
	if err != nil {
		// Transient errors are retried per spec.md §7; once retries are
		// exhausted the sighting is dropped rather than blocking the
		// pipeline on this frame.
		return Result{}, fmt.Errorf("matcher: record sighting: %w", err)
	}

	observability.SightingsRecorded.WithLabelValues(in.CameraID.String()).Inc()
	m.bus.Publish(eventbus.ProfileSighted(match.IdentityID, in.CameraID, in.BBox, confidence))
	return Result{IdentityID: match.IdentityID, Confidence: confidence}, nil
}

func (m *Matcher) onMiss(ctx context.Context, in Input, threshold float64) (Result, error) {
	m.createMu.Lock()
	defer m.createMu.Unlock()

	// Re-query with the lock held: another goroutine may have just
	// inserted the same face while we were waiting.
	matches, err := m.idx.Nearest(ctx, in.Embedding, 1, threshold)
	if err != nil {
		return Result{}, fmt.Errorf("matcher: re-query nearest: %w", err)
	}
	if len(matches) > 0 {
		return m.onMatch(ctx, matches[0], in, threshold)
	}

	now := in.DetectedAt
	id := uuid.New()

	snapshotKey := fmt.Sprintf("snapshots/%s/%s.jpg", in.CameraID, id)
	if len(in.CropJPEG) > 0 {
		if err := m.snapshots.Put(ctx, snapshotKey, in.CropJPEG, "image/jpeg"); err != nil {
			return Result{}, fmt.Errorf("matcher: store snapshot: %w", err)
		}
	} else {
		snapshotKey = ""
	}

	identity := &store.Identity{
		ID:             id,
		Classification: store.ClassificationUnknown,
		Embedding:      in.Embedding,
		Thumbnail:      snapshotKey,
		FirstSeenAt:    now,
		LastSeenAt:     now,
		SightingCount:  0,
		IsActive:       true,
	}
	if err := store.Retry(ctx, func(ctx context.Context) error {
		return m.identities.Create(ctx, identity)
	}); err != nil {
		return Result{}, fmt.Errorf("matcher: create identity: %w", err)
	}
	if err := m.idx.Add(ctx, id, in.Embedding, now); err != nil {
		return Result{}, fmt.Errorf("matcher: index new identity: %w", err)
	}

	m.bus.Publish(eventbus.ProfileCreated(id))

	sighting := store.Sighting{
		ID:          uuid.New(),
		IdentityID:  id,
		CameraID:    in.CameraID,
		Confidence:  1,
		BBox:        in.BBox,
		SnapshotRef: snapshotKey,
		DetectedAt:  now,
	}
	attachRecordingLink(&sighting, in)
	attachAttributes(&sighting, in)
	if err := store.Retry(ctx, func(ctx context.Context) error {
		return m.identities.RecordSighting(ctx, id, sighting)
	}); err != nil {
		return Result{}, fmt.Errorf("matcher: record first sighting: %w", err)
	}
	observability.SightingsRecorded.WithLabelValues(in.CameraID.String()).Inc()
	m.bus.Publish(eventbus.ProfileSighted(id, in.CameraID, in.BBox, 1))

	return Result{IdentityID: id, Confidence: 1, Created: true}, nil
}

// attachRecordingLink stamps a Sighting with the camera's in-flight
// recording, per spec.md's sighting-to-recording linkage requirement.
func attachRecordingLink(s *store.Sighting, in Input) {
	if in.RecordingID == (uuid.UUID{}) {
		return
	}
	id := in.RecordingID
	off := in.RecordingOffMS
	s.RecordingID = &id
	s.RecordingOffMS = &off
}

// attachAttributes copies the predicted gender/age onto the sighting, if
// the embed stage ran an attribute predictor for this crop.
func attachAttributes(s *store.Sighting, in Input) {
	a := in.Attributes
	if a == nil {
		return
	}
	gender := a.Gender
	conf := float64(a.GenderConfidence)
	age := a.Age
	ageRange := a.AgeRange
	s.Gender = &gender
	s.GenderConfidence = &conf
	s.Age = &age
	s.AgeRange = &ageRange
}

// DistanceToConfidence implements distance_to_confidence(d) = max(0,
// min(1, 1 - d/match_threshold)).
func DistanceToConfidence(d, matchThreshold float64) float64 {
	if matchThreshold <= 0 {
		return 0
	}
	c := 1 - d/matchThreshold
	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	return c
}
