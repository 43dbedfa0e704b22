package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"systemsmap-client/internal/backend"
	"systemsmap-client/internal/config"
	"systemsmap-client/internal/models"
	"systemsmap-client/internal/services"
	"systemsmap-client/internal/state"
	"systemsmap-client/internal/worker"
)

// app is the core wired together, shared by every command.
type app struct {
	state    *state.AppState
	client   *backend.Client
	sessions *services.SessionManager
	exchange *services.ExchangeCoordinator
	diagram  *services.DiagramViewModel
	intake   *services.DocumentIntake
	exporter *services.Exporter
	pool     *worker.Pool
}

// newApp builds the core. With background set, diagram resolves run on a
// worker pool; terminal commands resolve inline so results are ready when
// the command prints them.
func newApp(cfg *config.Config, logger *zap.Logger, publisher state.Publisher, background bool) (*app, error) {
	sink, err := services.SelectSink(cfg.ExportSink, cfg.DownloadDir, cfg.GalleryDir)
	if err != nil {
		return nil, err
	}

	a := &app{
		state:  state.New(publisher),
		client: backend.NewClient(cfg.BackendURL, cfg.BackendTimeout, logger.Named("backend")),
	}

	var scheduler services.Scheduler
	if background {
		a.pool = worker.NewPool(cfg.ResolveWorkers, 16, logger.Named("worker"))
		a.pool.Start()
		scheduler = a.pool
	}

	a.sessions = services.NewSessionManager(a.client, a.state, logger.Named("session"))
	a.exchange = services.NewExchangeCoordinator(a.sessions, a.client, a.state, logger.Named("exchange"))
	a.diagram = services.NewDiagramViewModel(a.state, a.client, a.client, scheduler, logger.Named("diagram"))
	a.intake = services.NewDocumentIntake(a.client,
		services.NewFileExtractService(cfg.ExtractText, logger.Named("extract")),
		a.diagram, a.state, logger.Named("intake"))
	a.exporter = services.NewExporter(a.client, sink, a.state, logger.Named("export"))

	logger.Debug("core wired",
		zap.String("backend", cfg.BackendURL),
		zap.String("export_sink", sink.Name()),
		zap.Bool("background_resolve", background))
	return a, nil
}

func (a *app) close() {
	if a.pool != nil {
		a.pool.Stop()
	}
}

func readUploadFiles(paths []string) ([]models.UploadFile, error) {
	files := make([]models.UploadFile, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		files = append(files, models.UploadFile{Name: filepath.Base(p), Data: data})
	}
	return files, nil
}

func printNotifications(w io.Writer, st *state.AppState) {
	for _, n := range st.Notifications() {
		fmt.Fprintf(w, "[%s] %s\n", n.Kind, n.Message)
		st.Dismiss(n.ID)
	}
}

func printDiagram(w io.Writer, d models.DiagramState) {
	switch d.Status {
	case models.DiagramEmpty:
		fmt.Fprintln(w, "No systems map yet.")
	case models.DiagramLoading:
		fmt.Fprintln(w, "Systems map is loading...")
	case models.DiagramReady:
		fmt.Fprintf(w, "Systems map ready (%s, %d bytes, zoom %.1fx)\n", d.ImageType, len(d.Image), d.Transform.Scale)
	case models.DiagramError:
		fmt.Fprintf(w, "Systems map unavailable: %s\n", d.Error)
	}
}
