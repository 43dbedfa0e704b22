package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"systemsmap-client/internal/state"
)

type NotificationHandler struct {
	state *state.AppState
}

func NewNotificationHandler(st *state.AppState) *NotificationHandler {
	return &NotificationHandler{state: st}
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": h.state.Notifications(),
	})
}

func (h *NotificationHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid notification ID", r))
		return
	}

	if !h.state.Dismiss(id) {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Notification not found", r))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
