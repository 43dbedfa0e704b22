package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"systemsmap-client/internal/handlers"
	"systemsmap-client/internal/middleware"
	"systemsmap-client/internal/websocket"
)

type Handlers struct {
	State         *handlers.StateHandler
	Conversation  *handlers.ConversationHandler
	Documents     *handlers.DocumentHandler
	Diagram       *handlers.DiagramHandler
	Notifications *handlers.NotificationHandler
}

func New(
	jwtAuth *middleware.JWTAuth,
	actionLimiter *middleware.RateLimiter,
	h Handlers,
	wsHub *websocket.Hub,
	frontendURL string,
	logger *zap.Logger,
) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(frontendURL))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── State & Session ────
		r.Group(func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/state", h.State.Get)
			r.Put("/input", h.State.PutInput)
			r.Get("/notifications", h.Notifications.List)
			r.Delete("/notifications/{id}", h.Notifications.Dismiss)
			r.Get("/diagram", h.Diagram.Get)
			r.Get("/diagram/image", h.Diagram.Image)

			// View transform writes are local and cheap, no limiter.
			r.Post("/diagram/zoom", h.Diagram.Zoom)
			r.Post("/diagram/gesture", h.Diagram.Gesture)
			r.Post("/diagram/reset", h.Diagram.Reset)
		})

		// ──── Backend Actions ────
		r.Group(func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			if actionLimiter != nil {
				r.Use(actionLimiter.Middleware)
			}
			r.Post("/session", h.State.StartSession)
			r.Post("/analyze", h.Conversation.Analyze)
			r.Post("/documents", h.Documents.Upload)
			r.Post("/diagram/retry", h.Diagram.Retry)
			r.Post("/diagram/legacy", h.Diagram.Legacy)
			r.Post("/diagram/export", h.Diagram.Export)
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
