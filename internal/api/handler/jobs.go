package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/vidforge/vidforge/internal/api/response"
	"github.com/vidforge/vidforge/internal/cache"
	"github.com/vidforge/vidforge/internal/jobs"
	"github.com/vidforge/vidforge/internal/modelark"
	"github.com/vidforge/vidforge/internal/store"
	"github.com/vidforge/vidforge/pkg/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// JobService defines the job operations the HTTP layer depends on.
type JobService interface {
	List(ctx context.Context, status string, page, limit int) ([]*models.Job, int, error)
	Create(ctx context.Context, params jobs.CreateParams) (*models.Job, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Job, error)
	StatusOf(ctx context.Context, id uuid.UUID) (cache.JobStatusEntry, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ForceReconcile(ctx context.Context, id uuid.UUID) (*models.Job, error)
	EngineStatus(ctx context.Context) (jobs.EngineStatus, error)
}

var _ JobService = (*jobs.Service)(nil)

// NewListJobsHandler returns the handler for GET /api/v1/jobs.
func NewListJobsHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := queryInt(r, "page", 1)
		if page < 1 {
			page = 1
		}
		limit := queryInt(r, "page_size", defaultPageSize)
		if limit < 1 {
			limit = defaultPageSize
		}
		if limit > maxPageSize {
			limit = maxPageSize
		}

		status := r.URL.Query().Get("status")
		if status != "" && !validJobStatus(status) {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR",
				"status must be one of pending, processing, completed, failed, cancelled", nil)
			return
		}

		list, total, err := svc.List(r.Context(), status, page, limit)
		if err != nil {
			serviceError(w, err)
			return
		}
		if list == nil {
			list = []*models.Job{}
		}

		response.Collection(w, list, response.NewPaginationMeta(page, limit, total))
	}
}

// NewCreateJobHandler returns the handler for POST /api/v1/jobs.
func NewCreateJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Prompt string `json:"prompt"`
			Model  string `json:"model"`
			Images []struct {
				URL  string `json:"url"`
				Role string `json:"role"`
			} `json:"images"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid JSON body", nil)
			return
		}

		params := jobs.CreateParams{Prompt: req.Prompt, Model: req.Model}
		for _, img := range req.Images {
			params.Images = append(params.Images, modelark.ImageInput{URL: img.URL, Role: img.Role})
		}

		job, err := svc.Create(r.Context(), params)
		if err != nil {
			serviceError(w, err)
			return
		}

		response.Created(w, job)
	}
}

// NewGetJobHandler returns the handler for GET /api/v1/jobs/{jobID}.
func NewGetJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobIDFromPath(w, r)
		if !ok {
			return
		}

		job, err := svc.Get(r.Context(), id)
		if err != nil {
			serviceError(w, err)
			return
		}

		response.JSON(w, job)
	}
}

type jobStatusResponse struct {
	ID       string  `json:"id"`
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
}

// NewJobStatusHandler returns the handler for GET /api/v1/jobs/{jobID}/status,
// the cheap poll endpoint backed by the status cache.
func NewJobStatusHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobIDFromPath(w, r)
		if !ok {
			return
		}

		entry, err := svc.StatusOf(r.Context(), id)
		if err != nil {
			serviceError(w, err)
			return
		}

		response.JSON(w, jobStatusResponse{
			ID:       id.String(),
			Status:   entry.Status,
			Progress: entry.Progress,
		})
	}
}

// NewDeleteJobHandler returns the handler for DELETE /api/v1/jobs/{jobID}.
func NewDeleteJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobIDFromPath(w, r)
		if !ok {
			return
		}

		if err := svc.Delete(r.Context(), id); err != nil {
			serviceError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// serviceError translates service-layer failures into response envelopes.
func serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, jobs.ErrPromptRequired):
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR",
			"prompt is required", nil)
	case errors.Is(err, jobs.ErrModelRequired):
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR",
			"no model requested and no default model configured", nil)
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
	case errors.Is(err, modelark.ErrUnavailable),
		errors.Is(err, modelark.ErrTimeout),
		errors.Is(err, modelark.ErrAPIError),
		errors.Is(err, modelark.ErrTaskNotFound):
		response.Error(w, http.StatusBadGateway, "REMOTE_UNAVAILABLE",
			"The generation API is not available", nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}

func jobIDFromPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid job ID", nil)
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, defaultVal int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}

func validJobStatus(status string) bool {
	switch status {
	case models.JobStatusPending, models.JobStatusProcessing,
		models.JobStatusCompleted, models.JobStatusFailed, models.JobStatusCancelled:
		return true
	}
	return false
}
