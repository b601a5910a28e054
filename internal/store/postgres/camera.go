package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/faceguard/internal/store"
)

type cameraRepo struct {
	pool *pgxpool.Pool
}

func (r cameraRepo) Create(ctx context.Context, c *store.Camera) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO cameras (id, name, kind, connection_descriptor, location_lat, location_lon,
		        target_width, target_height, target_fps, is_enabled, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING created_at, updated_at`,
		c.ID, c.Name, c.Kind, c.ConnectionDescriptor, c.LocationLat, c.LocationLon,
		c.TargetWidth, c.TargetHeight, c.TargetFPS, c.IsEnabled, c.Status,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return classify("camera.create", err)
	}
	return nil
}

func (r cameraRepo) Get(ctx context.Context, id uuid.UUID) (*store.Camera, error) {
	var c store.Camera
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, kind, connection_descriptor, location_lat, location_lon,
		        target_width, target_height, target_fps, is_enabled, status, last_frame_at, created_at, updated_at
		 FROM cameras WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Kind, &c.ConnectionDescriptor, &c.LocationLat, &c.LocationLon,
		&c.TargetWidth, &c.TargetHeight, &c.TargetFPS, &c.IsEnabled, &c.Status, &c.LastFrameAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &store.NotFound{Kind: "camera", ID: id.String()}
		}
		return nil, classify("camera.get", err)
	}
	return &c, nil
}

func (r cameraRepo) List(ctx context.Context, enabledOnly bool) ([]*store.Camera, error) {
	query := `SELECT id, name, kind, connection_descriptor, location_lat, location_lon,
	                 target_width, target_height, target_fps, is_enabled, status, last_frame_at, created_at, updated_at
	          FROM cameras`
	if enabledOnly {
		query += ` WHERE is_enabled`
	}
	query += ` ORDER BY name`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, classify("camera.list", err)
	}
	defer rows.Close()

	var out []*store.Camera
	for rows.Next() {
		var c store.Camera
		if err := rows.Scan(&c.ID, &c.Name, &c.Kind, &c.ConnectionDescriptor, &c.LocationLat, &c.LocationLon,
			&c.TargetWidth, &c.TargetHeight, &c.TargetFPS, &c.IsEnabled, &c.Status, &c.LastFrameAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, classify("camera.list.scan", err)
		}
		out = append(out, &c)
	}
	return out, nil
}

func (r cameraRepo) Update(ctx context.Context, c *store.Camera) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE cameras SET name=$1, kind=$2, connection_descriptor=$3, location_lat=$4, location_lon=$5,
		        target_width=$6, target_height=$7, target_fps=$8, is_enabled=$9, updated_at=now()
		 WHERE id=$10`,
		c.Name, c.Kind, c.ConnectionDescriptor, c.LocationLat, c.LocationLon,
		c.TargetWidth, c.TargetHeight, c.TargetFPS, c.IsEnabled, c.ID,
	)
	if err != nil {
		return classify("camera.update", err)
	}
	if tag.RowsAffected() == 0 {
		return &store.NotFound{Kind: "camera", ID: c.ID.String()}
	}
	return nil
}

func (r cameraRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM cameras WHERE id = $1`, id)
	if err != nil {
		return classify("camera.delete", err)
	}
	if tag.RowsAffected() == 0 {
		return &store.NotFound{Kind: "camera", ID: id.String()}
	}
	return nil
}

func (r cameraRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status store.CameraStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE cameras SET status=$1, last_frame_at=CASE WHEN $1 = 'active' THEN now() ELSE last_frame_at END, updated_at=now()
		 WHERE id=$2`,
		status, id,
	)
	if err != nil {
		return classify("camera.update_status", err)
	}
	if tag.RowsAffected() == 0 {
		return &store.NotFound{Kind: "camera", ID: id.String()}
	}
	return nil
}
