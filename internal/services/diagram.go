package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"systemsmap-client/internal/models"
	"systemsmap-client/internal/state"
)

// ImageFetcher downloads remote diagram bytes.
type ImageFetcher interface {
	FetchImage(ctx context.Context, url string) ([]byte, error)
}

// LegacyMapper drives the legacy /systems-map endpoint.
type LegacyMapper interface {
	CreateSystemsMap(ctx context.Context, req models.SystemsMapRequest) (string, error)
}

// Scheduler runs resolve jobs in the background.
type Scheduler interface {
	Submit(name string, fn func(ctx context.Context)) bool
}

var errNotAnImage = errors.New("payload is not an image")

// DiagramViewModel owns the systems map shown to the user: which artifact is
// current, whether its bytes are loaded, and the zoom transform.
type DiagramViewModel struct {
	state     *state.AppState
	fetcher   ImageFetcher
	legacy    LegacyMapper
	scheduler Scheduler
	logger    *zap.Logger
}

// NewDiagramViewModel wires the view model. With a nil scheduler resolves
// run on the caller's goroutine.
func NewDiagramViewModel(st *state.AppState, fetcher ImageFetcher, legacy LegacyMapper, scheduler Scheduler, logger *zap.Logger) *DiagramViewModel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiagramViewModel{
		state:     st,
		fetcher:   fetcher,
		legacy:    legacy,
		scheduler: scheduler,
		logger:    logger,
	}
}

// Present replaces the current artifact with raw and starts resolving it.
// A blank value returns the view to Empty. It reports whether an artifact is
// now current.
func (v *DiagramViewModel) Present(raw string) bool {
	artifact, ok := models.ParseArtifact(raw)
	if !ok {
		v.state.UpdateDiagram(func(d *models.DiagramState) bool {
			if d.Status == models.DiagramEmpty && d.Artifact == nil {
				return false
			}
			d.Generation++
			d.Status = models.DiagramEmpty
			d.Artifact = nil
			d.Image = nil
			d.ImageType = ""
			d.Error = ""
			return true
		})
		return false
	}

	var gen uint64
	v.state.UpdateDiagram(func(d *models.DiagramState) bool {
		d.Generation++
		gen = d.Generation
		a := artifact
		d.Artifact = &a
		d.Status = models.DiagramLoading
		d.Image = nil
		d.ImageType = ""
		d.Error = ""
		return true
	})

	v.logger.Info("systems map presented",
		zap.String("kind", string(artifact.Kind)),
		zap.String("ref", artifact.Ref()),
		zap.Uint64("generation", gen))
	v.schedule(gen, artifact)
	return true
}

// Retry re-resolves the current artifact after an error. It reports whether
// a resolve was started.
func (v *DiagramViewModel) Retry() bool {
	var (
		gen      uint64
		artifact models.Artifact
		ok       bool
	)
	v.state.UpdateDiagram(func(d *models.DiagramState) bool {
		if d.Status != models.DiagramError || d.Artifact == nil {
			return false
		}
		d.Generation++
		gen = d.Generation
		artifact = *d.Artifact
		d.Status = models.DiagramLoading
		d.Error = ""
		ok = true
		return true
	})
	if ok {
		v.schedule(gen, artifact)
	}
	return ok
}

// RequestLegacyMap asks the legacy endpoint to draw a map and presents what
// it returns. It is only ever a user action.
func (v *DiagramViewModel) RequestLegacyMap(ctx context.Context, req models.SystemsMapRequest) error {
	if v.legacy == nil {
		return errors.New("legacy systems map endpoint is not configured")
	}
	if len(req.Elements) == 0 {
		return &ValidationError{Fields: map[string]string{"elements": "At least one element is required"}}
	}
	url, err := v.legacy.CreateSystemsMap(ctx, req)
	if err != nil {
		aerr := &ArtifactError{Ref: "legacy systems map", Err: err}
		v.state.Notify(models.NotifyArtifact, aerr.Error())
		return aerr
	}
	// The fixed URL repeats between calls, so this always counts as a new artifact.
	v.Present(url)
	return nil
}

func (v *DiagramViewModel) schedule(gen uint64, artifact models.Artifact) {
	run := func(ctx context.Context) { v.resolve(ctx, gen, artifact) }
	if v.scheduler == nil {
		run(context.Background())
		return
	}
	if !v.scheduler.Submit("resolve-diagram", run) {
		v.finish(gen, artifact, nil, "", fmt.Errorf("could not schedule systems map load"))
	}
}

func (v *DiagramViewModel) resolve(ctx context.Context, gen uint64, artifact models.Artifact) {
	if v.current() != gen {
		return
	}
	data, mediaType, err := LoadArtifact(ctx, v.fetcher, artifact)
	v.finish(gen, artifact, data, mediaType, err)
}

func (v *DiagramViewModel) finish(gen uint64, artifact models.Artifact, data []byte, mediaType string, err error) {
	stale := false
	v.state.UpdateDiagram(func(d *models.DiagramState) bool {
		if d.Generation != gen {
			stale = true
			return false
		}
		if err != nil {
			d.Status = models.DiagramError
			d.Error = err.Error()
			d.Image = nil
			return true
		}
		d.Status = models.DiagramReady
		d.Image = data
		d.ImageType = mediaType
		d.Error = ""
		return true
	})

	switch {
	case stale:
		v.logger.Debug("discarding stale systems map result", zap.Uint64("generation", gen))
	case err != nil:
		aerr := &ArtifactError{Ref: artifact.Ref(), Err: err}
		v.logger.Warn("systems map unavailable", zap.Error(aerr))
		v.state.Notify(models.NotifyArtifact, aerr.Error())
	}
}

func (v *DiagramViewModel) current() uint64 {
	return v.state.Diagram().Generation
}

// ──── Zoom ────

// Zoom applies delta to the latest scale, clamps it and resets translation.
func (v *DiagramViewModel) Zoom(delta float64) models.ViewTransform {
	return v.state.UpdateDiagram(func(d *models.DiagramState) bool {
		d.Transform = models.ViewTransform{
			Scale:    models.ClampScale(d.Transform.Scale + delta),
			Revision: d.Transform.Revision + 1,
		}
		return true
	}).Transform
}

func (v *DiagramViewModel) ZoomIn() models.ViewTransform  { return v.Zoom(models.ZoomStep) }
func (v *DiagramViewModel) ZoomOut() models.ViewTransform { return v.Zoom(-models.ZoomStep) }

// ResetZoom returns to the identity transform.
func (v *DiagramViewModel) ResetZoom() models.ViewTransform {
	return v.state.UpdateDiagram(func(d *models.DiagramState) bool {
		rev := d.Transform.Revision + 1
		d.Transform = models.IdentityTransform()
		d.Transform.Revision = rev
		return true
	}).Transform
}

// EndGesture makes the gesture's final transform authoritative.
func (v *DiagramViewModel) EndGesture(scale, translateX, translateY float64) models.ViewTransform {
	return v.state.UpdateDiagram(func(d *models.DiagramState) bool {
		d.Transform = models.ViewTransform{
			Scale:      models.ClampScale(scale),
			TranslateX: translateX,
			TranslateY: translateY,
			Revision:   d.Transform.Revision + 1,
		}
		return true
	}).Transform
}

// Transform returns the current view transform.
func (v *DiagramViewModel) Transform() models.ViewTransform {
	return v.state.Diagram().Transform
}

// LoadArtifact returns the image bytes for artifact and their sniffed type.
func LoadArtifact(ctx context.Context, fetcher ImageFetcher, artifact models.Artifact) ([]byte, string, error) {
	var (
		data []byte
		err  error
	)
	switch artifact.Kind {
	case models.ArtifactRemoteURL:
		if fetcher == nil {
			return nil, "", errors.New("no image fetcher configured")
		}
		data, err = fetcher.FetchImage(ctx, artifact.URL)
	case models.ArtifactInline:
		data, err = artifact.Decode()
	default:
		return nil, "", fmt.Errorf("unknown artifact kind %q", artifact.Kind)
	}
	if err != nil {
		return nil, "", err
	}

	mediaType, err := sniffImage(data)
	if err != nil {
		return nil, "", err
	}
	return data, mediaType, nil
}

// sniffImage checks magic bytes the way uploads are checked server side.
func sniffImage(data []byte) (string, error) {
	mediaType := http.DetectContentType(data)
	if !strings.HasPrefix(mediaType, "image/") {
		return "", fmt.Errorf("%w (detected %s)", errNotAnImage, mediaType)
	}
	return mediaType, nil
}
