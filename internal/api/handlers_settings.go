package api

import (
	"net/http"

	"github.com/portal-hub/internal/models"
	"github.com/portal-hub/internal/service"
)

// createSettingsRequest is the body of POST /api/settings.
// Omitted flags take the defaults given to new users.
type createSettingsRequest struct {
	UserID           int64 `json:"userId" validate:"required,gt=0"`
	ProxyEnabled     *bool `json:"proxyEnabled"`
	AudioEnabled     *bool `json:"audioEnabled"`
	DarkThemeEnabled *bool `json:"darkThemeEnabled"`
	EffectsEnabled   *bool `json:"effectsEnabled"`
}

func (req createSettingsRequest) toNewSettings() models.NewSettings {
	out := models.DefaultSettings(req.UserID)
	if req.ProxyEnabled != nil {
		out.ProxyEnabled = *req.ProxyEnabled
	}
	if req.AudioEnabled != nil {
		out.AudioEnabled = *req.AudioEnabled
	}
	if req.DarkThemeEnabled != nil {
		out.DarkThemeEnabled = *req.DarkThemeEnabled
	}
	if req.EffectsEnabled != nil {
		out.EffectsEnabled = *req.EffectsEnabled
	}
	return out
}

// handleGetSettings handles GET /api/settings/{userId}
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	userID, err := parseIDParam(r, "userId")
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	settings, err := s.preferences.GetSettings(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, settings)
}

// handleCreateSettings handles POST /api/settings
func (s *Server) handleCreateSettings(w http.ResponseWriter, r *http.Request) {
	var req createSettingsRequest
	if err := parseJSONBody(w, r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}
	if err := service.ValidateStruct(req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	settings, err := s.preferences.CreateSettings(r.Context(), req.toNewSettings())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, settings)
}

// handleUpdateSettings handles PATCH /api/settings/{userId}
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	userID, err := parseIDParam(r, "userId")
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	var patch models.SettingsPatch
	if err := parseJSONBody(w, r, &patch); err != nil {
		respondServiceError(w, r, err)
		return
	}

	settings, err := s.preferences.UpdateSettings(r.Context(), userID, patch)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, settings)
}
