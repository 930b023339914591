package modelark

import "github.com/vidforge/vidforge/pkg/models"

// Task statuses reported by the generation API.
const (
	TaskStatusPending   = "pending"
	TaskStatusRunning   = "running"
	TaskStatusSucceeded = "succeeded"
	TaskStatusFailed    = "failed"
)

// MapStatus translates a remote task status into a local job status.
// Unknown values pass through unchanged so new remote states show up
// in the job record instead of being swallowed.
func MapStatus(remote string) string {
	switch remote {
	case TaskStatusPending:
		return models.JobStatusPending
	case TaskStatusRunning:
		return models.JobStatusProcessing
	case TaskStatusSucceeded:
		return models.JobStatusCompleted
	case TaskStatusFailed:
		return models.JobStatusFailed
	default:
		return remote
	}
}
