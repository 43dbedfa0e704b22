package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"systemsmap-client/internal/models"
	"systemsmap-client/internal/services"
)

type DocumentHandler struct {
	intake   *services.DocumentIntake
	maxBytes int64
}

func NewDocumentHandler(intake *services.DocumentIntake, maxUploadMB int) *DocumentHandler {
	return &DocumentHandler{intake: intake, maxBytes: int64(maxUploadMB) << 20}
}

// Upload accepts multipart "files" (one batch) or a single "file" for the
// legacy one-document endpoint.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.maxBytes {
		h.tooLarge(w, r)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		// Bodies without a Content-Length only hit the limit while parsing.
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) || errors.Is(err, multipart.ErrMessageTooLarge) {
			h.tooLarge(w, r)
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid multipart body", r))
		return
	}
	defer r.MultipartForm.RemoveAll()

	if headers := r.MultipartForm.File["file"]; len(headers) == 1 && len(r.MultipartForm.File["files"]) == 0 {
		file, err := readPart(headers[0])
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Could not read "+headers[0].Filename, r))
			return
		}
		result, err := h.intake.UploadSingle(r.Context(), file)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	headers := r.MultipartForm.File["files"]
	files := make([]models.UploadFile, 0, len(headers))
	for _, fh := range headers {
		file, err := readPart(fh)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Could not read "+fh.Filename, r))
			return
		}
		files = append(files, file)
	}

	result, err := h.intake.UploadBatch(r.Context(), files)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *DocumentHandler) tooLarge(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusRequestEntityTooLarge, errorResp("FILE_TOO_LARGE", "Upload exceeds "+strconv.FormatInt(h.maxBytes>>20, 10)+"MB limit", r))
}

func readPart(fh *multipart.FileHeader) (models.UploadFile, error) {
	f, err := fh.Open()
	if err != nil {
		return models.UploadFile{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return models.UploadFile{}, err
	}
	return models.UploadFile{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}
