package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"narrato-backend/internal/handlers"
	"narrato-backend/internal/middleware"
	"narrato-backend/internal/websocket"
)

func New(
	serviceAuth *middleware.ServiceAuth,
	segmentHandler *handlers.SegmentHandler,
	jobHandler *handlers.JobHandler,
	wsHub *websocket.Hub,
	mediaServer http.Handler,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Generation routes are expensive; bound enqueue bursts per caller.
	generateLimiter := middleware.NewRateLimiter(30, time.Minute)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Stored artifacts (public, immutable)
	r.Handle("/media/*", mediaServer)

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Segment Pipeline Routes ────
		r.Route("/segments", func(r chi.Router) {
			r.Use(serviceAuth.Middleware)
			r.Get("/{id}", segmentHandler.Get)

			r.Group(func(r chi.Router) {
				r.Use(generateLimiter.Middleware)
				r.Post("/{id}/audio", segmentHandler.GenerateAudio)
				r.Post("/{id}/silent-video", segmentHandler.GenerateSilentVideo)
				r.Post("/{id}/video", segmentHandler.GenerateFinalVideo)
				r.Post("/{id}/generate", segmentHandler.GenerateComposite)
				r.Post("/{id}/generate-translated", segmentHandler.GenerateTranslatedComposite)
			})
		})

		// ──── Job Routes ────
		r.Route("/jobs", func(r chi.Router) {
			r.Use(serviceAuth.Middleware)
			r.Get("/{id}", jobHandler.Get)
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
