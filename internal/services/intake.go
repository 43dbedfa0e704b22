package services

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"systemsmap-client/internal/models"
	"systemsmap-client/internal/state"
)

// Uploader sends documents to the backend.
type Uploader interface {
	UploadDocuments(ctx context.Context, files []models.UploadFile) (*models.UploadResponse, error)
	UploadDocument(ctx context.Context, file models.UploadFile) (*models.UploadResponse, error)
}

// DiagramPresenter accepts a raw systems map value from an upload response.
type DiagramPresenter interface {
	Present(raw string) bool
}

// DocumentIntake uploads documents one batch at a time. A successful batch
// appends the reported names and, when the response carries a systems map,
// replaces the diagram. A failed batch changes nothing.
type DocumentIntake struct {
	backend  Uploader
	preparer *FileExtractService
	diagram  DiagramPresenter
	state    *state.AppState
	logger   *zap.Logger
}

func NewDocumentIntake(backend Uploader, preparer *FileExtractService, diagram DiagramPresenter, st *state.AppState, logger *zap.Logger) *DocumentIntake {
	if logger == nil {
		logger = zap.NewNop()
	}
	if preparer == nil {
		preparer = NewFileExtractService(false, logger)
	}
	return &DocumentIntake{
		backend:  backend,
		preparer: preparer,
		diagram:  diagram,
		state:    st,
		logger:   logger,
	}
}

// Busy reports whether an upload is outstanding.
func (d *DocumentIntake) Busy() bool {
	return d.state.Busy().Upload
}

// UploadBatch sends files in one request. An empty batch is a no-op that
// sends nothing.
func (d *DocumentIntake) UploadBatch(ctx context.Context, files []models.UploadFile) (*models.UploadResult, error) {
	if len(files) == 0 {
		return &models.UploadResult{NoOp: true, Files: []string{}}, nil
	}
	return d.run(ctx, len(files), func() (*models.UploadResponse, error) {
		return d.backend.UploadDocuments(ctx, d.preparer.Prepare(files))
	})
}

// UploadSingle uses the single-file endpoint with the same guard and merge
// rules as UploadBatch.
func (d *DocumentIntake) UploadSingle(ctx context.Context, file models.UploadFile) (*models.UploadResult, error) {
	return d.run(ctx, 1, func() (*models.UploadResponse, error) {
		prepared := d.preparer.Prepare([]models.UploadFile{file})
		return d.backend.UploadDocument(ctx, prepared[0])
	})
}

func (d *DocumentIntake) run(ctx context.Context, count int, send func() (*models.UploadResponse, error)) (*models.UploadResult, error) {
	if !d.state.TryBegin(models.ActivityUpload) {
		return nil, ErrBusy
	}
	defer d.state.End(models.ActivityUpload)

	resp, err := send()
	if err != nil {
		uerr := &UploadError{Files: count, Err: err}
		d.logger.Warn("upload failed", zap.Int("files", count), zap.Error(err))
		d.state.Notify(models.NotifyUpload, uerr.Error())
		return nil, uerr
	}

	names := append([]string{}, resp.UploadedFiles...)
	d.state.AppendDocuments(names)

	result := &models.UploadResult{
		Message:  resp.Message,
		UploadID: resp.UploadID,
		Files:    names,
	}
	if resp.SystemsMap != nil && strings.TrimSpace(*resp.SystemsMap) != "" && d.diagram != nil {
		result.DiagramUpdated = d.diagram.Present(*resp.SystemsMap)
	}

	d.logger.Info("upload completed",
		zap.String("upload_id", resp.UploadID),
		zap.Strings("files", names),
		zap.Bool("diagram_updated", result.DiagramUpdated))
	return result, nil
}
