// Package eventbus implements the in-process typed broadcast bus, its
// NATS JetStream durable leg, and the WebSocket fan-out hub.
package eventbus

import (
	"time"

	"github.com/google/uuid"

	"github.com/your-org/faceguard/internal/store"
)

// Type discriminates a DomainEvent for JSON consumers.
type Type string

const (
	TypeFaceDetected        Type = "FaceDetected"
	TypeProfileCreated      Type = "ProfileCreated"
	TypeProfileSighted      Type = "ProfileSighted"
	TypeProfileClassified   Type = "ProfileClassified"
	TypeRecordingStarted    Type = "RecordingStarted"
	TypeRecordingStopped    Type = "RecordingStopped"
	TypeCameraStatusChanged Type = "CameraStatusChanged"
	TypeStorageWarning      Type = "StorageWarning"
)

// DomainEvent is the single envelope broadcast on the bus, durably
// published to NATS, and rendered to WebSocket subscribers.
type DomainEvent struct {
	Type       Type      `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`

	IdentityID     *uuid.UUID           `json:"identity_id,omitempty"`
	CameraID       *uuid.UUID           `json:"camera_id,omitempty"`
	BBox           *store.BBox          `json:"bbox,omitempty"`
	Confidence     *float64             `json:"confidence,omitempty"`
	Classification *store.Classification `json:"classification,omitempty"`
	RecordingID    *uuid.UUID           `json:"recording_id,omitempty"`
	CameraStatus   *store.CameraStatus  `json:"camera_status,omitempty"`
	UsagePercent   *float64             `json:"usage_percent,omitempty"`
}

// FaceDetected builds a transient, debounce-suppressed-but-still-fired
// sighting event for UI responsiveness.
func FaceDetected(identityID, cameraID uuid.UUID, bbox store.BBox, confidence float64) DomainEvent {
	return DomainEvent{
		Type: TypeFaceDetected, OccurredAt: time.Now(),
		IdentityID: &identityID, CameraID: &cameraID, BBox: &bbox, Confidence: &confidence,
	}
}

// ProfileCreated announces a new identity.
func ProfileCreated(identityID uuid.UUID) DomainEvent {
	return DomainEvent{Type: TypeProfileCreated, OccurredAt: time.Now(), IdentityID: &identityID}
}

// ProfileSighted announces a persisted (non-debounced) sighting.
func ProfileSighted(identityID, cameraID uuid.UUID, bbox store.BBox, confidence float64) DomainEvent {
	return DomainEvent{
		Type: TypeProfileSighted, OccurredAt: time.Now(),
		IdentityID: &identityID, CameraID: &cameraID, BBox: &bbox, Confidence: &confidence,
	}
}

// ProfileClassified announces a classification change on an identity.
func ProfileClassified(identityID uuid.UUID, classification store.Classification) DomainEvent {
	return DomainEvent{Type: TypeProfileClassified, OccurredAt: time.Now(), IdentityID: &identityID, Classification: &classification}
}

// RecordingStarted announces a camera entering the Recording state.
func RecordingStarted(cameraID, recordingID uuid.UUID) DomainEvent {
	return DomainEvent{Type: TypeRecordingStarted, OccurredAt: time.Now(), CameraID: &cameraID, RecordingID: &recordingID}
}

// RecordingStopped announces a finalized or interrupted recording.
func RecordingStopped(cameraID, recordingID uuid.UUID) DomainEvent {
	return DomainEvent{Type: TypeRecordingStopped, OccurredAt: time.Now(), CameraID: &cameraID, RecordingID: &recordingID}
}

// CameraStatusChanged announces a camera's observed liveness change.
func CameraStatusChanged(cameraID uuid.UUID, status store.CameraStatus) DomainEvent {
	return DomainEvent{Type: TypeCameraStatusChanged, OccurredAt: time.Now(), CameraID: &cameraID, CameraStatus: &status}
}

// StorageWarning announces the janitor crossing a usage threshold.
func StorageWarning(usagePercent float64) DomainEvent {
	return DomainEvent{Type: TypeStorageWarning, OccurredAt: time.Now(), UsagePercent: &usagePercent}
}
