package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
	JobStatusCancelled  = "cancelled"
)

// InFlightStatuses are the statuses the reconciliation engine still polls.
var InFlightStatuses = []string{JobStatusPending, JobStatusProcessing}

// IsTerminalStatus reports whether status permits no further transitions.
// Unknown statuses passed through from the remote API are not terminal.
func IsTerminalStatus(status string) bool {
	switch status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Job tracks one remote video-generation task. The API returns the job on
// POST /api/v1/jobs; the reconciliation engine keeps status current until the
// job reaches a terminal state, and the downloader fills local_artifact_path
// once the finished artifact has been fetched.
type Job struct {
	ID                uuid.UUID  `db:"id"                  json:"id"`
	ExternalID        string     `db:"external_id"         json:"external_id"`
	Prompt            string     `db:"prompt"              json:"prompt"`
	Model             string     `db:"model"               json:"model"`
	Status            string     `db:"status"              json:"status"`
	Progress          float64    `db:"progress"            json:"progress"`
	ArtifactURL       *string    `db:"artifact_url"        json:"artifact_url,omitempty"`
	ThumbnailURL      *string    `db:"thumbnail_url"       json:"thumbnail_url,omitempty"`
	LocalArtifactPath *string    `db:"local_artifact_path" json:"local_artifact_path,omitempty"`
	ErrorMessage      *string    `db:"error_message"       json:"error_message,omitempty"`
	CreatedAt         time.Time  `db:"created_at"          json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"          json:"updated_at"`
	CompletedAt       *time.Time `db:"completed_at"        json:"completed_at,omitempty"`
}
