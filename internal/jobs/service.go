package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/vidforge/vidforge/internal/cache"
	"github.com/vidforge/vidforge/internal/engine"
	"github.com/vidforge/vidforge/internal/modelark"
	"github.com/vidforge/vidforge/internal/store"
	"github.com/vidforge/vidforge/pkg/models"
)

// Coordinator is the engine surface the job service drives.
type Coordinator interface {
	Resume()
	ForceReconcile(ctx context.Context, jobID uuid.UUID) error
	Status() engine.Status
}

// CreateParams holds validated parameters for a new job.
type CreateParams struct {
	Prompt string
	Model  string
	Images []modelark.ImageInput
}

// EngineStatus is the coordinator snapshot served to clients.
type EngineStatus struct {
	State        string
	PendingCount int
	NextTickIn   time.Duration
}

// Service orchestrates job lifecycle operations across the store, the
// remote generation API, the status cache and the reconciliation engine.
type Service struct {
	store        store.Store
	cache        cache.Cache
	ark          modelark.Client
	engine       Coordinator
	defaultModel string
}

// NewService creates a job service. defaultModel is the endpoint used when
// neither the request nor the settings table names one.
func NewService(st store.Store, ca cache.Cache, ark modelark.Client, coord Coordinator, defaultModel string) *Service {
	return &Service{
		store:        st,
		cache:        ca,
		ark:          ark,
		engine:       coord,
		defaultModel: defaultModel,
	}
}

// Create registers a new generation job: the remote task is created first,
// then the local record, so a local row always points at a real remote task.
// The engine is woken afterwards so the job is picked up without waiting out
// a poll interval.
func (s *Service) Create(ctx context.Context, params CreateParams) (*models.Job, error) {
	if params.Prompt == "" {
		return nil, ErrPromptRequired
	}

	model, err := s.resolveModel(ctx, params.Model)
	if err != nil {
		return nil, err
	}

	task, err := s.ark.CreateTask(ctx, modelark.CreateTaskRequest{
		Model:  model,
		Prompt: params.Prompt,
		Images: params.Images,
	})
	if err != nil {
		return nil, fmt.Errorf("creating remote task: %w", err)
	}
	if task.ID == "" {
		return nil, fmt.Errorf("remote task created without an id")
	}

	status := models.JobStatusPending
	if task.Status != "" {
		status = modelark.MapStatus(task.Status)
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:         uuid.New(),
		ExternalID: task.ID,
		Prompt:     params.Prompt,
		Model:      model,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("persisting job: %w", err)
	}

	_ = s.cache.SetJobStatus(ctx, job.ID, cache.JobStatusEntry{Status: job.Status, Progress: job.Progress}, 30*time.Minute)

	s.engine.Resume()

	slog.Info("job created", "job_id", job.ID, "external_id", job.ExternalID, "model", model)
	return job, nil
}

// resolveModel picks the endpoint for a new task: explicit request value,
// then the default_model setting, then the configured fallback.
func (s *Service) resolveModel(ctx context.Context, requested string) (string, error) {
	if requested != "" {
		return requested, nil
	}

	setting, err := s.store.GetSetting(ctx, models.SettingDefaultModel)
	if err == nil && setting.Value != "" {
		return setting.Value, nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("reading default model setting: %w", err)
	}

	if s.defaultModel != "" {
		return s.defaultModel, nil
	}
	return "", ErrModelRequired
}

// List returns one page of jobs, newest first, with the total count.
func (s *Service) List(ctx context.Context, status string, page, limit int) ([]*models.Job, int, error) {
	return s.store.ListJobs(ctx, store.JobFilter{Status: status, Page: page, Limit: limit})
}

// Get fetches a single job.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return s.store.GetJob(ctx, id)
}

// StatusOf serves the hot status snapshot for a job, cache first with a
// store fallback that re-primes the cache.
func (s *Service) StatusOf(ctx context.Context, id uuid.UUID) (cache.JobStatusEntry, error) {
	entry, ok, err := s.cache.GetJobStatus(ctx, id)
	if err == nil && ok {
		return entry, nil
	}
	if err != nil {
		slog.Warn("reading status cache", "job_id", id, "error", err)
	}

	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return cache.JobStatusEntry{}, err
	}

	entry = cache.JobStatusEntry{Status: job.Status, Progress: job.Progress}
	_ = s.cache.SetJobStatus(ctx, id, entry, 30*time.Minute)
	return entry, nil
}

// Delete removes a job and everything hanging off it: the remote task is
// cancelled best-effort while still in flight, the local artifact file is
// removed when present, then the row and the cached status go.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return err
	}

	if !models.IsTerminalStatus(job.Status) {
		if err := s.ark.DeleteTask(ctx, job.ExternalID); err != nil {
			slog.Warn("remote task cancel failed", "job_id", id, "external_id", job.ExternalID, "error", err)
		}
	}

	if job.LocalArtifactPath != nil {
		if err := os.Remove(*job.LocalArtifactPath); err != nil && !os.IsNotExist(err) {
			slog.Warn("removing local artifact", "job_id", id, "path", *job.LocalArtifactPath, "error", err)
		}
	}

	if err := s.store.DeleteJob(ctx, id); err != nil {
		return fmt.Errorf("deleting job: %w", err)
	}

	_ = s.cache.Delete(ctx, cache.JobStatusKey(id))

	slog.Info("job deleted", "job_id", id, "external_id", job.ExternalID)
	return nil
}

// ForceReconcile reconciles one job immediately and returns the refreshed
// record. A transient remote failure surfaces to the caller instead of being
// deferred to the next tick.
func (s *Service) ForceReconcile(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	if err := s.engine.ForceReconcile(ctx, id); err != nil {
		return nil, err
	}
	return s.store.GetJob(ctx, id)
}

// EngineStatus reports the coordinator state together with the number of
// jobs still in flight.
func (s *Service) EngineStatus(ctx context.Context) (EngineStatus, error) {
	pending, err := s.store.CountInFlightJobs(ctx)
	if err != nil {
		return EngineStatus{}, fmt.Errorf("counting in-flight jobs: %w", err)
	}

	st := s.engine.Status()
	status := EngineStatus{State: st.State, PendingCount: pending}
	if !st.NextTickAt.IsZero() {
		if eta := time.Until(st.NextTickAt); eta > 0 {
			status.NextTickIn = eta
		}
	}
	return status, nil
}
