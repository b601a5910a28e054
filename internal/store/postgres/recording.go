package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/faceguard/internal/store"
)

type recordingRepo struct {
	pool *pgxpool.Pool
}

func (r recordingRepo) Create(ctx context.Context, rec *store.Recording) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO recordings (id, camera_id, file_ref, size_bytes, duration_ms, frame_count, status, has_detections, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at`,
		rec.ID, rec.CameraID, rec.FileRef, rec.SizeBytes, rec.DurationMS, rec.FrameCount,
		rec.Status, rec.HasDetections, rec.StartedAt,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return classify("recording.create", err)
	}
	return nil
}

func (r recordingRepo) Get(ctx context.Context, id uuid.UUID) (*store.Recording, error) {
	var rec store.Recording
	err := r.pool.QueryRow(ctx,
		`SELECT id, camera_id, file_ref, size_bytes, duration_ms, frame_count, status, has_detections, started_at, ended_at, created_at
		 FROM recordings WHERE id = $1`, id,
	).Scan(&rec.ID, &rec.CameraID, &rec.FileRef, &rec.SizeBytes, &rec.DurationMS, &rec.FrameCount,
		&rec.Status, &rec.HasDetections, &rec.StartedAt, &rec.EndedAt, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &store.NotFound{Kind: "recording", ID: id.String()}
		}
		return nil, classify("recording.get", err)
	}
	return &rec, nil
}

func (r recordingRepo) Update(ctx context.Context, rec *store.Recording) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE recordings SET file_ref=$1, size_bytes=$2, duration_ms=$3, frame_count=$4,
		        status=$5, has_detections=$6, ended_at=$7
		 WHERE id=$8`,
		rec.FileRef, rec.SizeBytes, rec.DurationMS, rec.FrameCount, rec.Status, rec.HasDetections, rec.EndedAt, rec.ID,
	)
	if err != nil {
		return classify("recording.update", err)
	}
	if tag.RowsAffected() == 0 {
		return &store.NotFound{Kind: "recording", ID: rec.ID.String()}
	}
	return nil
}

func (r recordingRepo) ListByCamera(ctx context.Context, cameraID uuid.UUID, limit, offset int) ([]*store.Recording, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, camera_id, file_ref, size_bytes, duration_ms, frame_count, status, has_detections, started_at, ended_at, created_at
		 FROM recordings WHERE camera_id = $1 ORDER BY started_at DESC LIMIT $2 OFFSET $3`,
		cameraID, limit, offset,
	)
	if err != nil {
		return nil, classify("recording.list_by_camera", err)
	}
	defer rows.Close()
	return scanRecordings(rows)
}

func (r recordingRepo) ListCompletedOldestFirst(ctx context.Context, limit int) ([]*store.Recording, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, camera_id, file_ref, size_bytes, duration_ms, frame_count, status, has_detections, started_at, ended_at, created_at
		 FROM recordings WHERE status = 'completed' ORDER BY started_at ASC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, classify("recording.list_completed", err)
	}
	defer rows.Close()
	return scanRecordings(rows)
}

func (r recordingRepo) ListInterrupted(ctx context.Context) ([]*store.Recording, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, camera_id, file_ref, size_bytes, duration_ms, frame_count, status, has_detections, started_at, ended_at, created_at
		 FROM recordings WHERE status IN ('recording', 'interrupted')`,
	)
	if err != nil {
		return nil, classify("recording.list_interrupted", err)
	}
	defer rows.Close()
	return scanRecordings(rows)
}

func (r recordingRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM recordings WHERE id = $1`, id)
	if err != nil {
		return classify("recording.delete", err)
	}
	if tag.RowsAffected() == 0 {
		return &store.NotFound{Kind: "recording", ID: id.String()}
	}
	return nil
}

func (r recordingRepo) TotalSizeBytes(ctx context.Context) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(size_bytes), 0) FROM recordings`).Scan(&total)
	if err != nil {
		return 0, classify("recording.total_size", err)
	}
	return total, nil
}

func scanRecordings(rows pgx.Rows) ([]*store.Recording, error) {
	var out []*store.Recording
	for rows.Next() {
		var rec store.Recording
		if err := rows.Scan(&rec.ID, &rec.CameraID, &rec.FileRef, &rec.SizeBytes, &rec.DurationMS, &rec.FrameCount,
			&rec.Status, &rec.HasDetections, &rec.StartedAt, &rec.EndedAt, &rec.CreatedAt); err != nil {
			return nil, classify("recording.scan", err)
		}
		out = append(out, &rec)
	}
	return out, nil
}
