package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"systemsmap-client/internal/models"
	"systemsmap-client/internal/services"
)

// Shared helpers

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: r.Header.Get("X-Request-ID"),
		},
	}
}

func errorRespWithFields(code, message string, fields map[string]string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			Fields:    fields,
			RequestID: r.Header.Get("X-Request-ID"),
		},
	}
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *services.ValidationError
		serr *services.SessionError
		xerr *services.ExchangeError
		uerr *services.UploadError
		aerr *services.ArtifactError
		eerr *services.ExportError
	)

	switch {
	case errors.Is(err, services.ErrBusy):
		writeJSON(w, http.StatusConflict, errorResp("BUSY", "Another request of this kind is still running", r))
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", verr.Fields, r))
	case errors.As(err, &serr):
		writeJSON(w, http.StatusBadGateway, errorResp("SESSION_ERROR", serr.Error(), r))
	case errors.As(err, &xerr):
		writeJSON(w, http.StatusBadGateway, errorResp("EXCHANGE_ERROR", xerr.Error(), r))
	case errors.As(err, &uerr):
		writeJSON(w, http.StatusBadGateway, errorResp("UPLOAD_ERROR", uerr.Error(), r))
	case errors.As(err, &aerr):
		writeJSON(w, http.StatusBadGateway, errorResp("ARTIFACT_ERROR", aerr.Error(), r))
	case errors.As(err, &eerr):
		if eerr.Stage == services.StageSource {
			writeJSON(w, http.StatusNotFound, errorResp("NO_DIAGRAM", eerr.Error(), r))
			return
		}
		writeJSON(w, http.StatusBadGateway, errorResp("EXPORT_ERROR", eerr.Error(), r))
	default:
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "An unexpected error occurred", r))
	}
}
