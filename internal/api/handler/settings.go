package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vidforge/vidforge/internal/api/response"
	"github.com/vidforge/vidforge/internal/store"
	"github.com/vidforge/vidforge/pkg/models"
)

// SettingsStore is the slice of the store the settings handlers need.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (*models.Setting, error)
	PutSetting(ctx context.Context, key, value string) error
}

type settingsResponse struct {
	DefaultModel string `json:"default_model"`
}

// NewGetSettingsHandler returns the handler for GET /api/v1/settings.
func NewGetSettingsHandler(st SettingsStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setting, err := st.GetSetting(r.Context(), models.SettingDefaultModel)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.JSON(w, settingsResponse{})
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to read settings", nil)
			return
		}

		response.JSON(w, settingsResponse{DefaultModel: setting.Value})
	}
}

// NewPutSettingsHandler returns the handler for PUT /api/v1/settings. Storing
// an empty default_model clears the override and falls back to the configured
// model id.
func NewPutSettingsHandler(st SettingsStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			DefaultModel string `json:"default_model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid JSON body", nil)
			return
		}

		if err := st.PutSetting(r.Context(), models.SettingDefaultModel, req.DefaultModel); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to save settings", nil)
			return
		}

		response.JSON(w, settingsResponse{DefaultModel: req.DefaultModel})
	}
}
