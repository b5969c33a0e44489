package api

import (
	"net/http"

	"github.com/portal-hub/internal/models"
	"github.com/portal-hub/internal/service"
)

type postMessageRequest struct {
	UserID  int64  `json:"userId" validate:"required,gt=0"`
	Message string `json:"message" validate:"required"`
}

// PostMessageResponse is returned after a user message is stored
type PostMessageResponse struct {
	Success bool                     `json:"success"`
	Message *models.AssistantMessage `json:"message"`
}

// handleListMessages handles GET /api/assistant/messages/{userId}
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	userID, err := parseIDParam(r, "userId")
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	messages, err := s.assistant.ListMessages(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, messages)
}

// handlePostMessage handles POST /api/assistant/message.
// The assistant's reply is stored later and shows up in the message list.
func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if err := parseJSONBody(w, r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}
	if err := service.ValidateStruct(req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	msg, err := s.assistant.PostMessage(r.Context(), req.UserID, req.Message)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, PostMessageResponse{Success: true, Message: msg})
}
