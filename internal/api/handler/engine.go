package handler

import (
	"net/http"

	"github.com/vidforge/vidforge/internal/api/response"
)

type engineStatusResponse struct {
	State             string  `json:"state"`
	PendingJobs       int     `json:"pending_jobs"`
	NextTickInSeconds float64 `json:"next_tick_in_seconds"`
}

// NewReconcileJobHandler returns the handler for POST /api/v1/jobs/{jobID}/reconcile.
// The job is reconciled synchronously and the refreshed record is returned.
func NewReconcileJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobIDFromPath(w, r)
		if !ok {
			return
		}

		job, err := svc.ForceReconcile(r.Context(), id)
		if err != nil {
			serviceError(w, err)
			return
		}

		response.JSON(w, job)
	}
}

// NewEngineStatusHandler returns the handler for GET /api/v1/engine/status.
func NewEngineStatusHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := svc.EngineStatus(r.Context())
		if err != nil {
			serviceError(w, err)
			return
		}

		response.JSON(w, engineStatusResponse{
			State:             status.State,
			PendingJobs:       status.PendingCount,
			NextTickInSeconds: status.NextTickIn.Seconds(),
		})
	}
}
