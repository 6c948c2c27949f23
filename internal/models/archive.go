package models

import (
	"time"

	"github.com/google/uuid"
)

// Archive statuses.
const (
	ArchivePending   = "pending"
	ArchiveUploading = "uploading"
	ArchiveCompleted = "completed"
	ArchiveFailed    = "failed"
)

// Archive is a recorded broadcast uploaded to object storage after a session ends.
type Archive struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	Status    string    `json:"status"`
	S3Key     string    `json:"s3_key,omitempty"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
