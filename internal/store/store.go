package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/vidforge/vidforge/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	GetJobByExternalID(ctx context.Context, externalID string) (*models.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, int, error)
	ListInFlightJobs(ctx context.Context) ([]*models.Job, error)
	CountInFlightJobs(ctx context.Context) (int, error)
	ApplyJobUpdates(ctx context.Context, updates []JobUpdate) error
	SetJobLocalArtifactPath(ctx context.Context, externalID, path string) error
	DeleteJob(ctx context.Context, id uuid.UUID) error

	GetSetting(ctx context.Context, key string) (*models.Setting, error)
	PutSetting(ctx context.Context, key, value string) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}

// JobFilter narrows ListJobs; zero values mean no filter.
type JobFilter struct {
	Status string
	Page   int
	Limit  int
}

// JobUpdate is one job's staged reconciliation outcome. A tick accumulates
// these in memory and commits them together through ApplyJobUpdates; nil
// pointer fields are left untouched on the row.
type JobUpdate struct {
	ID           uuid.UUID
	Status       string
	Progress     float64
	ArtifactURL  *string
	ThumbnailURL *string
	ErrorMessage *string
	CompletedAt  *time.Time
}
