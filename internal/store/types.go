// Package store defines the durable repository contracts for identities,
// sightings, cameras, recordings, and settings (spec component C2), plus
// the domain types they carry. Implementations live in subpackages
// (internal/store/postgres).
package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/your-org/faceguard/internal/embedding"
)

// Classification is an identity's trust level.
type Classification string

const (
	ClassificationTrusted Classification = "trusted"
	ClassificationKnown   Classification = "known"
	ClassificationUnknown Classification = "unknown"
	ClassificationFlagged Classification = "flagged"
)

// Identity is a durable record of a recognized person.
type Identity struct {
	ID             uuid.UUID
	Name           string
	Classification Classification
	Embedding      embedding.Embedding
	Thumbnail      string
	Tags           []string
	Notes          string
	FirstSeenAt    time.Time
	LastSeenAt     time.Time
	SightingCount  int
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CameraKind enumerates the kinds of capture source a Camera can describe.
type CameraKind string

const (
	CameraKindBuiltin CameraKind = "builtin"
	CameraKindUSB     CameraKind = "usb"
	CameraKindRTSP    CameraKind = "rtsp"
	CameraKindBrowser CameraKind = "browser"
	CameraKindFile    CameraKind = "file"
	CameraKindScreen  CameraKind = "screen"
)

// CameraStatus is the observed liveness of a camera's Frame Source.
type CameraStatus string

const (
	CameraStatusActive       CameraStatus = "active"
	CameraStatusInactive     CameraStatus = "inactive"
	CameraStatusError        CameraStatus = "error"
	CameraStatusDisconnected CameraStatus = "disconnected"
)

// Camera is a durable record describing one video source.
type Camera struct {
	ID                   uuid.UUID
	Name                 string
	Kind                 CameraKind
	ConnectionDescriptor string
	LocationLat          *float64
	LocationLon          *float64
	TargetWidth          int
	TargetHeight         int
	TargetFPS            int
	IsEnabled            bool
	Status               CameraStatus
	LastFrameAt          *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// BBox is an axis-aligned bounding box in frame pixel coordinates.
type BBox struct {
	X, Y, W, H float64
}

// Sighting is an immutable observation of an identity on a camera.
type Sighting struct {
	ID             uuid.UUID
	IdentityID     uuid.UUID
	CameraID       uuid.UUID
	Confidence     float64
	BBox           BBox
	SnapshotRef    string
	RecordingID    *uuid.UUID
	RecordingOffMS *int64
	DetectedAt     time.Time

	// Gender/Age are populated when the pipeline's attribute predictor ran
	// for this detection; nil when attribute prediction is disabled.
	Gender           *string
	GenderConfidence *float64
	Age              *int
	AgeRange         *string
}

// SightingFilter narrows a sighting range query.
type SightingFilter struct {
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

// RecordingStatus is the lifecycle state of a Recording row.
type RecordingStatus string

const (
	RecordingStatusRecording  RecordingStatus = "recording"
	RecordingStatusCompleted  RecordingStatus = "completed"
	RecordingStatusInterrupted RecordingStatus = "interrupted"
	RecordingStatusDeleting   RecordingStatus = "deleting"
)

// Recording is a durable record of one recorded video segment.
type Recording struct {
	ID             uuid.UUID
	CameraID       uuid.UUID
	FileRef        string
	SizeBytes      int64
	DurationMS     int64
	FrameCount     int64
	Status         RecordingStatus
	HasDetections  bool
	StartedAt      time.Time
	EndedAt        *time.Time
	CreatedAt      time.Time
}

// DetectionConfig holds the detection-side Settings fields.
type DetectionConfig struct {
	MinConfidence        float64
	MatchThreshold       float64
	SightingCooldownSecs int
	MotionEnabled        bool
	ProcessEveryNFrames  int
	MinFaceSizePx        int
	MaxFacesPerFrame     int
}

// RecordingConfig holds the recording-side Settings fields.
type RecordingConfig struct {
	DetectionTriggered   bool
	PreTriggerSecs       int
	PostTriggerSecs      int
	MaxSegmentSecs       int
	MaxStorageBytes      int64
	AutoCleanup          bool
	CleanupTargetPercent float64
	MinRetentionDays     int
}

// NotificationConfig holds the notification-side Settings fields.
type NotificationConfig struct {
	Enabled       bool
	WebhookURL    string
	NotifyUnknown bool
}

// Settings is the process-wide, singleton configuration row.
type Settings struct {
	Detection    DetectionConfig
	Recording    RecordingConfig
	Notification NotificationConfig
	UpdatedAt    time.Time
}
