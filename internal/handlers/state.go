package handlers

import (
	"encoding/json"
	"net/http"

	"systemsmap-client/internal/services"
	"systemsmap-client/internal/state"
)

type StateHandler struct {
	state    *state.AppState
	sessions *services.SessionManager
}

func NewStateHandler(st *state.AppState, sessions *services.SessionManager) *StateHandler {
	return &StateHandler{state: st, sessions: sessions}
}

// Get returns the full presentation state.
func (h *StateHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.state.Snapshot())
}

// PutInput replaces the pending query text.
func (h *StateHandler) PutInput(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Input *string `json:"input"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Input == nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	h.state.SetInput(*req.Input)
	writeJSON(w, http.StatusOK, map[string]string{"input": *req.Input})
}

// StartSession creates the conversation now instead of on the first query.
func (h *StateHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	id, err := h.sessions.EnsureSession(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"conversation_id": id})
}
