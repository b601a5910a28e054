package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/faceguard/internal/store"
)

type sightingRepo struct {
	pool *pgxpool.Pool
}

func (r sightingRepo) Create(ctx context.Context, s *store.Sighting) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sightings (id, identity_id, camera_id, confidence, bbox_x, bbox_y, bbox_w, bbox_h,
		        snapshot_ref, recording_id, recording_offset_ms, detected_at,
		        gender, gender_confidence, age, age_range)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		s.ID, s.IdentityID, s.CameraID, s.Confidence, s.BBox.X, s.BBox.Y, s.BBox.W, s.BBox.H,
		s.SnapshotRef, s.RecordingID, s.RecordingOffMS, s.DetectedAt,
		s.Gender, s.GenderConfidence, s.Age, s.AgeRange,
	)
	if err != nil {
		return classify("sighting.create", err)
	}
	return nil
}

func (r sightingRepo) Get(ctx context.Context, id uuid.UUID) (*store.Sighting, error) {
	var s store.Sighting
	err := r.pool.QueryRow(ctx,
		`SELECT id, identity_id, camera_id, confidence, bbox_x, bbox_y, bbox_w, bbox_h,
		        snapshot_ref, recording_id, recording_offset_ms, detected_at,
		        gender, gender_confidence, age, age_range
		 FROM sightings WHERE id = $1`, id,
	).Scan(&s.ID, &s.IdentityID, &s.CameraID, &s.Confidence, &s.BBox.X, &s.BBox.Y, &s.BBox.W, &s.BBox.H,
		&s.SnapshotRef, &s.RecordingID, &s.RecordingOffMS, &s.DetectedAt,
		&s.Gender, &s.GenderConfidence, &s.Age, &s.AgeRange)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &store.NotFound{Kind: "sighting", ID: id.String()}
		}
		return nil, classify("sighting.get", err)
	}
	return &s, nil
}

func (r sightingRepo) ListByIdentity(ctx context.Context, identityID uuid.UUID, f store.SightingFilter) ([]*store.Sighting, error) {
	return r.listFiltered(ctx, "identity_id", identityID, f)
}

func (r sightingRepo) ListByCamera(ctx context.Context, cameraID uuid.UUID, f store.SightingFilter) ([]*store.Sighting, error) {
	return r.listFiltered(ctx, "camera_id", cameraID, f)
}

func (r sightingRepo) listFiltered(ctx context.Context, col string, id uuid.UUID, f store.SightingFilter) ([]*store.Sighting, error) {
	where := fmt.Sprintf("WHERE %s = $1", col)
	args := []interface{}{id}
	idx := 2
	if f.From != nil {
		where += fmt.Sprintf(" AND detected_at >= $%d", idx)
		args = append(args, *f.From)
		idx++
	}
	if f.To != nil {
		where += fmt.Sprintf(" AND detected_at <= $%d", idx)
		args = append(args, *f.To)
		idx++
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(
		`SELECT id, identity_id, camera_id, confidence, bbox_x, bbox_y, bbox_w, bbox_h,
		        snapshot_ref, recording_id, recording_offset_ms, detected_at,
		        gender, gender_confidence, age, age_range
		 FROM sightings %s ORDER BY detected_at DESC LIMIT $%d OFFSET $%d`,
		where, idx, idx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify("sighting.list", err)
	}
	defer rows.Close()

	var out []*store.Sighting
	for rows.Next() {
		var s store.Sighting
		if err := rows.Scan(&s.ID, &s.IdentityID, &s.CameraID, &s.Confidence, &s.BBox.X, &s.BBox.Y, &s.BBox.W, &s.BBox.H,
			&s.SnapshotRef, &s.RecordingID, &s.RecordingOffMS, &s.DetectedAt,
			&s.Gender, &s.GenderConfidence, &s.Age, &s.AgeRange); err != nil {
			return nil, classify("sighting.list.scan", err)
		}
		out = append(out, &s)
	}
	return out, nil
}
