package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"systemsmap-client/internal/broker"
	"systemsmap-client/internal/handlers"
	"systemsmap-client/internal/middleware"
	"systemsmap-client/internal/models"
	"systemsmap-client/internal/router"
	"systemsmap-client/internal/state"
	"systemsmap-client/internal/websocket"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local shell server for the browser UI",
	Long: `Starts the local HTTP API and WebSocket event stream the browser UI
drives. A shell token is printed at startup; the UI sends it as a Bearer
token or as ?token= on the WebSocket URL.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger.Info("starting systems map shell")

	// ──── Step 1: Shell Token ────
	secret := cfg.ShellSecret
	if secret == "" {
		secret = uuid.NewString()
		logger.Info("no SHELL_SECRET set, using a per-run secret")
	}
	jwtAuth := middleware.NewJWTAuth(secret)
	token, err := jwtAuth.GenerateShellToken(uuid.NewString(), cfg.TokenTTL)
	if err != nil {
		return fmt.Errorf("failed to create shell token: %w", err)
	}

	// ──── Step 2: Optional Redis Fan-out ────
	hubOpts := websocket.HubOptions{Channel: broker.DefaultChannel, Logger: logger.Named("ws")}
	if cfg.RedisURL != "" {
		redisClients, err := broker.NewRedisClients(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer redisClients.Close()
		hubOpts.RedisPublish = redisClients.Publish
		hubOpts.RedisSubscribe = redisClients.PubSub
		logger.Info("redis connected", zap.String("channel", broker.DefaultChannel))
	}

	// ──── Step 3: Event Hub + Core ────
	var st *state.AppState
	hubOpts.Snapshot = func() models.Snapshot { return st.Snapshot() }
	wsHub := websocket.NewHub(jwtAuth, hubOpts)
	defer wsHub.Close()

	a, err := newApp(cfg, logger, wsHub, true)
	if err != nil {
		return err
	}
	defer a.close()
	st = a.state
	logger.Info("core ready",
		zap.String("backend", a.client.BaseURL()),
		zap.String("export_sink", a.exporter.SinkName()),
		zap.Int("resolve_workers", cfg.ResolveWorkers))

	// ──── Step 4: HTTP Server ────
	actionLimiter := middleware.NewRateLimiter(60, time.Minute)
	defer actionLimiter.Stop()

	r := router.New(jwtAuth, actionLimiter, router.Handlers{
		State:         handlers.NewStateHandler(a.state, a.sessions),
		Conversation:  handlers.NewConversationHandler(a.exchange, a.state),
		Documents:     handlers.NewDocumentHandler(a.intake, cfg.MaxUploadMB),
		Diagram:       handlers.NewDiagramHandler(a.diagram, a.exporter, a.state),
		Notifications: handlers.NewNotificationHandler(a.state),
	}, wsHub, cfg.FrontendURL, logger.Named("http"))

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.ShellPort),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Systems map shell ready on http://localhost:%s\n", cfg.ShellPort)
	fmt.Fprintf(out, "  API:   http://localhost:%s/api/v1\n", cfg.ShellPort)
	fmt.Fprintf(out, "  WS:    ws://localhost:%s/api/v1/ws?token=%s\n", cfg.ShellPort, token)
	fmt.Fprintf(out, "  Token: %s\n", token)

	select {
	case err := <-errCh:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
