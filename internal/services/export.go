package services

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"systemsmap-client/internal/models"
	"systemsmap-client/internal/state"
)

// Sink persists exported diagram bytes somewhere the user can reach them.
type Sink interface {
	Name() string
	Save(ctx context.Context, data []byte, mediaType string) (*models.ExportOutcome, error)
}

var errNothingToExport = errors.New("there is no systems map to export yet")

// Exporter saves the systems map through the platform sink chosen at
// startup. Bytes that fail to fetch or decode never reach the sink.
type Exporter struct {
	fetcher ImageFetcher
	sink    Sink
	state   *state.AppState
	logger  *zap.Logger
}

func NewExporter(fetcher ImageFetcher, sink Sink, st *state.AppState, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{fetcher: fetcher, sink: sink, state: st, logger: logger}
}

func (e *Exporter) SinkName() string {
	return e.sink.Name()
}

// ExportCurrent exports whatever artifact the diagram view currently holds.
func (e *Exporter) ExportCurrent(ctx context.Context) (*models.ExportOutcome, error) {
	d := e.state.Diagram()
	if d.Artifact == nil {
		return nil, e.fail(&ExportError{Stage: StageSource, Err: errNothingToExport})
	}
	return e.Export(ctx, *d.Artifact)
}

// Export fetches or decodes artifact and hands the bytes to the sink.
func (e *Exporter) Export(ctx context.Context, artifact models.Artifact) (*models.ExportOutcome, error) {
	if !e.state.TryBegin(models.ActivityExport) {
		return nil, ErrBusy
	}
	defer e.state.End(models.ActivityExport)

	var (
		data []byte
		err  error
	)
	switch artifact.Kind {
	case models.ArtifactRemoteURL:
		if e.fetcher == nil {
			return nil, e.fail(&ExportError{Stage: StageFetch, Err: errors.New("no image fetcher configured")})
		}
		data, err = e.fetcher.FetchImage(ctx, artifact.URL)
		if err != nil {
			return nil, e.fail(&ExportError{Stage: StageFetch, Err: err})
		}
	case models.ArtifactInline:
		data, err = artifact.Decode()
		if err != nil {
			return nil, e.fail(&ExportError{Stage: StageDecode, Err: err})
		}
	default:
		return nil, e.fail(&ExportError{Stage: StageSource, Err: errors.New("unknown artifact kind " + string(artifact.Kind))})
	}

	mediaType, err := sniffImage(data)
	if err != nil {
		return nil, e.fail(&ExportError{Stage: StageDecode, Err: err})
	}

	outcome, err := e.sink.Save(ctx, data, mediaType)
	if err != nil {
		return nil, e.fail(&ExportError{Stage: StageWrite, Err: err})
	}

	e.logger.Info("systems map exported",
		zap.String("sink", outcome.Sink),
		zap.String("location", outcome.Location),
		zap.Int("bytes", outcome.Bytes))

	msg := "Systems map saved"
	if outcome.Location != "" {
		msg += " to " + outcome.Location
	}
	if outcome.Note != "" {
		msg += ". " + outcome.Note
	}
	e.state.Notify(models.NotifyInfo, msg)
	return outcome, nil
}

func (e *Exporter) fail(xerr *ExportError) error {
	e.logger.Warn("export failed", zap.String("stage", string(xerr.Stage)), zap.Error(xerr.Err))
	e.state.Notify(models.NotifyExport, xerr.Error())
	return xerr
}
