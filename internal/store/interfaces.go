package store

import (
	"context"

	"github.com/google/uuid"
)

// IdentityRepo persists recognized-person identities.
type IdentityRepo interface {
	Create(ctx context.Context, id *Identity) error
	Get(ctx context.Context, id uuid.UUID) (*Identity, error)
	List(ctx context.Context, activeOnly bool) ([]*Identity, error)
	Update(ctx context.Context, id *Identity) error
	Delete(ctx context.Context, id uuid.UUID) error
	// RecordSighting bumps last_seen_at and sighting_count atomically;
	// called only for sightings that clear the debounce cooldown, per
	// the Open Question decision that debounced sightings don't count.
	RecordSighting(ctx context.Context, id uuid.UUID, seenAt Sighting) error
}

// SightingRepo persists immutable sighting observations.
type SightingRepo interface {
	Create(ctx context.Context, s *Sighting) error
	Get(ctx context.Context, id uuid.UUID) (*Sighting, error)
	ListByIdentity(ctx context.Context, identityID uuid.UUID, f SightingFilter) ([]*Sighting, error)
	ListByCamera(ctx context.Context, cameraID uuid.UUID, f SightingFilter) ([]*Sighting, error)
}

// CameraRepo persists camera configuration and observed status.
type CameraRepo interface {
	Create(ctx context.Context, c *Camera) error
	Get(ctx context.Context, id uuid.UUID) (*Camera, error)
	List(ctx context.Context, enabledOnly bool) ([]*Camera, error)
	Update(ctx context.Context, c *Camera) error
	Delete(ctx context.Context, id uuid.UUID) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status CameraStatus) error
}

// RecordingRepo persists recorded video segments.
type RecordingRepo interface {
	Create(ctx context.Context, r *Recording) error
	Get(ctx context.Context, id uuid.UUID) (*Recording, error)
	Update(ctx context.Context, r *Recording) error
	ListByCamera(ctx context.Context, cameraID uuid.UUID, limit, offset int) ([]*Recording, error)
	// ListCompletedOldestFirst supports the janitor's eviction sweep.
	ListCompletedOldestFirst(ctx context.Context, limit int) ([]*Recording, error)
	// ListInterrupted supports startup recovery of recordings left in
	// the Recording or Interrupted state by an unclean shutdown.
	ListInterrupted(ctx context.Context) ([]*Recording, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// TotalSizeBytes sums size_bytes across all non-deleted recordings,
	// the janitor's storage-usage scan.
	TotalSizeBytes(ctx context.Context) (int64, error)
}

// SettingsRepo persists the single process-wide Settings row.
type SettingsRepo interface {
	Get(ctx context.Context) (*Settings, error)
	Update(ctx context.Context, s *Settings) error
}
