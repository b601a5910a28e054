package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/faceguard/internal/embedding"
	"github.com/your-org/faceguard/internal/store"
)

type identityRepo struct {
	pool *pgxpool.Pool
}

func (r identityRepo) Create(ctx context.Context, id *store.Identity) error {
	if id.ID == uuid.Nil {
		id.ID = uuid.New()
	}
	vec := pgvector.NewVector(id.Embedding.Values())
	err := r.pool.QueryRow(ctx,
		`INSERT INTO identities (id, name, classification, embedding, thumbnail, tags, notes, first_seen_at, last_seen_at, sighting_count, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING created_at, updated_at`,
		id.ID, id.Name, id.Classification, vec, id.Thumbnail, id.Tags, id.Notes,
		id.FirstSeenAt, id.LastSeenAt, id.SightingCount, id.IsActive,
	).Scan(&id.CreatedAt, &id.UpdatedAt)
	if err != nil {
		return classify("identity.create", err)
	}
	return nil
}

func (r identityRepo) Get(ctx context.Context, id uuid.UUID) (*store.Identity, error) {
	var out store.Identity
	var vec pgvector.Vector
	var tags []string
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, classification, embedding, thumbnail, tags, notes,
		        first_seen_at, last_seen_at, sighting_count, is_active, created_at, updated_at
		 FROM identities WHERE id = $1`, id,
	).Scan(&out.ID, &out.Name, &out.Classification, &vec, &out.Thumbnail, &tags, &out.Notes,
		&out.FirstSeenAt, &out.LastSeenAt, &out.SightingCount, &out.IsActive, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &store.NotFound{Kind: "identity", ID: id.String()}
		}
		return nil, classify("identity.get", err)
	}
	out.Tags = tags
	emb, err := embedding.New(vec.Slice())
	if err != nil {
		return nil, &store.Fatal{Op: "identity.get", Err: err}
	}
	out.Embedding = emb
	return &out, nil
}

func (r identityRepo) List(ctx context.Context, activeOnly bool) ([]*store.Identity, error) {
	query := `SELECT id, name, classification, embedding, thumbnail, tags, notes,
	                 first_seen_at, last_seen_at, sighting_count, is_active, created_at, updated_at
	          FROM identities`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY last_seen_at DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, classify("identity.list", err)
	}
	defer rows.Close()

	var out []*store.Identity
	for rows.Next() {
		var id store.Identity
		var vec pgvector.Vector
		var tags []string
		if err := rows.Scan(&id.ID, &id.Name, &id.Classification, &vec, &id.Thumbnail, &tags, &id.Notes,
			&id.FirstSeenAt, &id.LastSeenAt, &id.SightingCount, &id.IsActive, &id.CreatedAt, &id.UpdatedAt); err != nil {
			return nil, classify("identity.list.scan", err)
		}
		id.Tags = tags
		emb, err := embedding.New(vec.Slice())
		if err != nil {
			return nil, &store.Fatal{Op: "identity.list", Err: err}
		}
		id.Embedding = emb
		out = append(out, &id)
	}
	return out, nil
}

func (r identityRepo) Update(ctx context.Context, id *store.Identity) error {
	vec := pgvector.NewVector(id.Embedding.Values())
	tag, err := r.pool.Exec(ctx,
		`UPDATE identities SET name=$1, classification=$2, embedding=$3, thumbnail=$4, tags=$5,
		        notes=$6, is_active=$7, updated_at=now()
		 WHERE id=$8`,
		id.Name, id.Classification, vec, id.Thumbnail, id.Tags, id.Notes, id.IsActive, id.ID,
	)
	if err != nil {
		return classify("identity.update", err)
	}
	if tag.RowsAffected() == 0 {
		return &store.NotFound{Kind: "identity", ID: id.ID.String()}
	}
	return nil
}

func (r identityRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM identities WHERE id = $1`, id)
	if err != nil {
		return classify("identity.delete", err)
	}
	if tag.RowsAffected() == 0 {
		return &store.NotFound{Kind: "identity", ID: id.String()}
	}
	return nil
}

// RecordSighting inserts the immutable sighting row and bumps the
// identity's last_seen_at/sighting_count in one transaction, so a
// reader never observes a sighting row without the matching counter
// bump or vice versa.
func (r identityRepo) RecordSighting(ctx context.Context, id uuid.UUID, s store.Sighting) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return classify("identity.record_sighting.begin", err)
	}
	defer tx.Rollback(ctx)

	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO sightings (id, identity_id, camera_id, confidence, bbox_x, bbox_y, bbox_w, bbox_h,
		        snapshot_ref, recording_id, recording_offset_ms, detected_at,
		        gender, gender_confidence, age, age_range)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		s.ID, id, s.CameraID, s.Confidence, s.BBox.X, s.BBox.Y, s.BBox.W, s.BBox.H,
		s.SnapshotRef, s.RecordingID, s.RecordingOffMS, s.DetectedAt,
		s.Gender, s.GenderConfidence, s.Age, s.AgeRange,
	); err != nil {
		return classify("identity.record_sighting.insert", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE identities SET last_seen_at = $1, sighting_count = sighting_count + 1, updated_at = now()
		 WHERE id = $2`,
		s.DetectedAt, id,
	)
	if err != nil {
		return classify("identity.record_sighting.update", err)
	}
	if tag.RowsAffected() == 0 {
		return &store.NotFound{Kind: "identity", ID: id.String()}
	}

	if err := tx.Commit(ctx); err != nil {
		return classify("identity.record_sighting.commit", err)
	}
	return nil
}
