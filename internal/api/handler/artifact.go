package handler

import (
	"net/http"
	"os"

	"github.com/vidforge/vidforge/internal/api/response"
)

// NewJobArtifactHandler returns the handler for GET /api/v1/jobs/{jobID}/artifact.
// The locally downloaded file is served when it exists; otherwise the client is
// redirected to the remote artifact URL, which stays valid for 24 hours.
func NewJobArtifactHandler(svc JobService) http.HandlerFunc {
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

		if job.LocalArtifactPath != nil {
			if _, err := os.Stat(*job.LocalArtifactPath); err == nil {
				http.ServeFile(w, r, *job.LocalArtifactPath)
				return
			}
		}

		if job.ArtifactURL != nil && *job.ArtifactURL != "" {
			http.Redirect(w, r, *job.ArtifactURL, http.StatusFound)
			return
		}

		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job has no artifact", nil)
	}
}
