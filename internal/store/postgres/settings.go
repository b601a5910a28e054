package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/faceguard/internal/store"
)

type settingsRepo struct {
	pool *pgxpool.Pool
}

// Get reads the single settings row (id=1 by convention). Callers hold
// this as their source of truth; there is no per-camera override table.
func (r settingsRepo) Get(ctx context.Context) (*store.Settings, error) {
	var s store.Settings
	err := r.pool.QueryRow(ctx,
		`SELECT min_confidence, match_threshold, sighting_cooldown_secs, motion_enabled,
		        process_every_n_frames, min_face_size_px, max_faces_per_frame,
		        detection_triggered, pre_trigger_secs, post_trigger_secs, max_segment_secs,
		        max_storage_bytes, auto_cleanup, cleanup_target_percent, min_retention_days,
		        notify_enabled, webhook_url, notify_unknown, updated_at
		 FROM settings WHERE id = 1`,
	).Scan(
		&s.Detection.MinConfidence, &s.Detection.MatchThreshold, &s.Detection.SightingCooldownSecs, &s.Detection.MotionEnabled,
		&s.Detection.ProcessEveryNFrames, &s.Detection.MinFaceSizePx, &s.Detection.MaxFacesPerFrame,
		&s.Recording.DetectionTriggered, &s.Recording.PreTriggerSecs, &s.Recording.PostTriggerSecs, &s.Recording.MaxSegmentSecs,
		&s.Recording.MaxStorageBytes, &s.Recording.AutoCleanup, &s.Recording.CleanupTargetPercent, &s.Recording.MinRetentionDays,
		&s.Notification.Enabled, &s.Notification.WebhookURL, &s.Notification.NotifyUnknown, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &store.NotFound{Kind: "settings", ID: "singleton"}
		}
		return nil, classify("settings.get", err)
	}
	return &s, nil
}

// Update upserts the singleton settings row. It is an upsert rather than
// a plain UPDATE because the very first call for a fresh deployment (the
// config-seeded defaults written at startup) runs before any row exists.
func (r settingsRepo) Update(ctx context.Context, s *store.Settings) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO settings (
		        id, min_confidence, match_threshold, sighting_cooldown_secs, motion_enabled,
		        process_every_n_frames, min_face_size_px, max_faces_per_frame,
		        detection_triggered, pre_trigger_secs, post_trigger_secs, max_segment_secs,
		        max_storage_bytes, auto_cleanup, cleanup_target_percent, min_retention_days,
		        notify_enabled, webhook_url, notify_unknown, updated_at
		 ) VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, now())
		 ON CONFLICT (id) DO UPDATE SET
		        min_confidence=$1, match_threshold=$2, sighting_cooldown_secs=$3, motion_enabled=$4,
		        process_every_n_frames=$5, min_face_size_px=$6, max_faces_per_frame=$7,
		        detection_triggered=$8, pre_trigger_secs=$9, post_trigger_secs=$10, max_segment_secs=$11,
		        max_storage_bytes=$12, auto_cleanup=$13, cleanup_target_percent=$14, min_retention_days=$15,
		        notify_enabled=$16, webhook_url=$17, notify_unknown=$18, updated_at=now()`,
		s.Detection.MinConfidence, s.Detection.MatchThreshold, s.Detection.SightingCooldownSecs, s.Detection.MotionEnabled,
		s.Detection.ProcessEveryNFrames, s.Detection.MinFaceSizePx, s.Detection.MaxFacesPerFrame,
		s.Recording.DetectionTriggered, s.Recording.PreTriggerSecs, s.Recording.PostTriggerSecs, s.Recording.MaxSegmentSecs,
		s.Recording.MaxStorageBytes, s.Recording.AutoCleanup, s.Recording.CleanupTargetPercent, s.Recording.MinRetentionDays,
		s.Notification.Enabled, s.Notification.WebhookURL, s.Notification.NotifyUnknown,
	)
	if err != nil {
		return classify("settings.update", err)
	}
	return nil
}
