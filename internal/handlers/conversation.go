package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"systemsmap-client/internal/services"
	"systemsmap-client/internal/state"
)

type ConversationHandler struct {
	exchange *services.ExchangeCoordinator
	state    *state.AppState
}

func NewConversationHandler(exchange *services.ExchangeCoordinator, st *state.AppState) *ConversationHandler {
	return &ConversationHandler{exchange: exchange, state: st}
}

// Analyze sends the query in the body, or the current input buffer when the
// body has none.
func (h *ConversationHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	query := req.Query
	if query == "" {
		query = h.state.Input()
	}

	history, err := h.exchange.Analyze(r.Context(), query)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	snap := h.state.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversation": history,
		"analysis":     snap.Analysis,
		"plot":         snap.Plot,
	})
}
