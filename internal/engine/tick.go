package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vidforge/vidforge/internal/cache"
	"github.com/vidforge/vidforge/internal/modelark"
	"github.com/vidforge/vidforge/internal/store"
	"github.com/vidforge/vidforge/pkg/models"
)

// downloadCandidate is a job that became completed during a tick and has a
// resolvable artifact URL.
type downloadCandidate struct {
	externalID string
	url        string
}

// runTick reconciles every in-flight job once. Updates are staged in memory
// and committed together; download candidates launch only after a successful
// commit. It reports idle=true when there was nothing to reconcile so the
// caller can pause the loop.
func (e *Engine) runTick(ctx context.Context) bool {
	jobs, err := e.store.ListInFlightJobs(ctx)
	if err != nil {
		slog.Error("listing in-flight jobs", "error", err)
		return false
	}
	if len(jobs) == 0 {
		return true
	}

	updates := make([]store.JobUpdate, 0, len(jobs))
	var candidates []downloadCandidate

	for _, job := range jobs {
		update, candidate, err := e.reconcileJob(ctx, job)
		if err != nil {
			slog.Warn("reconcile failed, retrying next tick", "job_id", job.ID, "external_id", job.ExternalID, "error", err)
			continue
		}
		if update == nil {
			continue
		}
		updates = append(updates, *update)
		if candidate != nil {
			candidates = append(candidates, *candidate)
		}
	}

	if len(updates) == 0 {
		return false
	}

	if err := e.store.ApplyJobUpdates(ctx, updates); err != nil {
		slog.Error("committing tick updates, rolled back", "error", err, "staged", len(updates))
		return false
	}

	for _, u := range updates {
		_ = e.cache.SetJobStatus(ctx, u.ID, cache.JobStatusEntry{Status: u.Status, Progress: u.Progress}, 30*time.Minute)
	}
	for _, c := range candidates {
		e.downloader.Launch(c.externalID, c.url)
	}

	return false
}

// reconcileJob fetches the remote task for one job and stages the resulting
// update. A transient remote failure comes back as an error and leaves the
// job untouched; a missing remote task stages a terminal failure instead.
// Panics are contained here so one bad job cannot corrupt the updates staged
// for the others.
func (e *Engine) reconcileJob(ctx context.Context, job *models.Job) (update *store.JobUpdate, candidate *downloadCandidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic reconciling job", "error", r, "job_id", job.ID)
			update, candidate = nil, nil
			err = fmt.Errorf("reconcile panic: %v", r)
		}
	}()

	task, err := e.ark.GetTask(ctx, job.ExternalID)
	if err != nil {
		if errors.Is(err, modelark.ErrTaskNotFound) {
			msg := "job not found"
			slog.Warn("remote task missing, failing job", "job_id", job.ID, "external_id", job.ExternalID)
			return &store.JobUpdate{
				ID:           job.ID,
				Status:       models.JobStatusFailed,
				Progress:     job.Progress,
				ErrorMessage: &msg,
			}, nil, nil
		}
		return nil, nil, err
	}

	mapped := modelark.MapStatus(task.Status)
	progress := job.Progress
	if task.Progress != nil && *task.Progress > progress {
		progress = *task.Progress
	}

	if mapped == job.Status && progress == job.Progress {
		return nil, nil, nil
	}

	if mapped != job.Status {
		slog.Info("job transition", "job_id", job.ID, "external_id", job.ExternalID, "from", job.Status, "to", mapped)
	}

	update = &store.JobUpdate{ID: job.ID, Status: mapped, Progress: progress}

	switch mapped {
	case models.JobStatusCompleted:
		now := time.Now().UTC()
		update.CompletedAt = &now
		if task.Content != nil && task.Content.VideoURL != "" {
			update.ArtifactURL = &task.Content.VideoURL
			if task.Content.ThumbnailURL != "" {
				update.ThumbnailURL = &task.Content.ThumbnailURL
			}
			candidate = &downloadCandidate{externalID: job.ExternalID, url: task.Content.VideoURL}
		} else {
			slog.Warn("job completed without artifact url", "job_id", job.ID, "external_id", job.ExternalID)
		}
	case models.JobStatusFailed:
		msg := "generation failed"
		if task.Error != nil && task.Error.Message != "" {
			msg = task.Error.Message
		}
		update.ErrorMessage = &msg
	}

	return update, candidate, nil
}
