package api

import (
	"net/http"

	"github.com/portal-hub/internal/models"
	"github.com/portal-hub/internal/service"
)

// createSiteRequest is the body of POST /api/sites; position is required but may be zero
type createSiteRequest struct {
	UserID   int64  `json:"userId" validate:"required,gt=0"`
	Name     string `json:"name" validate:"required"`
	URL      string `json:"url" validate:"required"`
	Icon     string `json:"icon" validate:"required"`
	Position *int   `json:"position" validate:"required"`
}

// handleListSites handles GET /api/sites/{userId}
func (s *Server) handleListSites(w http.ResponseWriter, r *http.Request) {
	userID, err := parseIDParam(r, "userId")
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	sites, err := s.preferences.ListSites(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, sites)
}

// handleCreateSite handles POST /api/sites
func (s *Server) handleCreateSite(w http.ResponseWriter, r *http.Request) {
	var req createSiteRequest
	if err := parseJSONBody(w, r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}
	if err := service.ValidateStruct(req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	site, err := s.preferences.CreateSite(r.Context(), models.NewSite{
		UserID:   req.UserID,
		Name:     req.Name,
		URL:      req.URL,
		Icon:     req.Icon,
		Position: *req.Position,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, site)
}

// handleUpdateSite handles PATCH /api/sites/{id}
func (s *Server) handleUpdateSite(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	var patch models.SitePatch
	if err := parseJSONBody(w, r, &patch); err != nil {
		respondServiceError(w, r, err)
		return
	}

	site, err := s.preferences.UpdateSite(r.Context(), id, patch)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, site)
}

// handleDeleteSite handles DELETE /api/sites/{id}
func (s *Server) handleDeleteSite(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	if err := s.preferences.DeleteSite(r.Context(), id); err != nil {
		respondServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
