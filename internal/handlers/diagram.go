package handlers

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"systemsmap-client/internal/models"
	"systemsmap-client/internal/services"
	"systemsmap-client/internal/state"
)

type DiagramHandler struct {
	diagram  *services.DiagramViewModel
	exporter *services.Exporter
	state    *state.AppState
}

func NewDiagramHandler(diagram *services.DiagramViewModel, exporter *services.Exporter, st *state.AppState) *DiagramHandler {
	return &DiagramHandler{diagram: diagram, exporter: exporter, state: st}
}

func (h *DiagramHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.state.Diagram())
}

// Image serves the resolved diagram bytes.
func (h *DiagramHandler) Image(w http.ResponseWriter, r *http.Request) {
	d := h.state.Diagram()
	if d.Status != models.DiagramReady || len(d.Image) == 0 {
		writeJSON(w, http.StatusNotFound, errorResp("DIAGRAM_NOT_READY", "Systems map is "+string(d.Status), r))
		return
	}

	w.Header().Set("Content-Type", d.ImageType)
	w.Header().Set("Content-Length", strconv.Itoa(len(d.Image)))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Diagram-Generation", strconv.FormatUint(d.Generation, 10))
	w.WriteHeader(http.StatusOK)
	w.Write(d.Image)
}

func (h *DiagramHandler) Zoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Delta *float64 `json:"delta"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Delta == nil || !finite(*req.Delta) {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "delta is required", r))
		return
	}

	writeJSON(w, http.StatusOK, h.diagram.Zoom(*req.Delta))
}

func (h *DiagramHandler) Gesture(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Scale      *float64 `json:"scale"`
		TranslateX float64  `json:"translate_x"`
		TranslateY float64  `json:"translate_y"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Scale == nil ||
		!finite(*req.Scale) || !finite(req.TranslateX) || !finite(req.TranslateY) {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "scale is required", r))
		return
	}

	writeJSON(w, http.StatusOK, h.diagram.EndGesture(*req.Scale, req.TranslateX, req.TranslateY))
}

func (h *DiagramHandler) Reset(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.diagram.ResetZoom())
}

func (h *DiagramHandler) Retry(w http.ResponseWriter, r *http.Request) {
	if !h.diagram.Retry() {
		writeJSON(w, http.StatusConflict, errorResp("NOTHING_TO_RETRY", "The systems map is not in an error state", r))
		return
	}
	writeJSON(w, http.StatusAccepted, h.state.Diagram())
}

// Legacy asks the old /systems-map endpoint to draw elements and
// relationships supplied by the user.
func (h *DiagramHandler) Legacy(w http.ResponseWriter, r *http.Request) {
	var req models.SystemsMapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if err := h.diagram.RequestLegacyMap(r.Context(), req); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, h.state.Diagram())
}

func (h *DiagramHandler) Export(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.exporter.ExportCurrent(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
