package handler

import (
	"net/http"

	"github.com/cnrosu/yt-ai-summariser/pkg/middleware"
	"github.com/go-chi/chi/v5"
)

// Router handles HTTP routing
type Router struct {
	contextHandler *ContextHandler
	healthHandler  *HealthHandler
	corsConfig     middleware.CORSConfig
}

// NewRouter creates a new router
func NewRouter(
	contextHandler *ContextHandler,
	healthHandler *HealthHandler,
	corsConfig middleware.CORSConfig,
) *Router {
	return &Router{
		contextHandler: contextHandler,
		healthHandler:  healthHandler,
		corsConfig:     corsConfig,
	}
}

// Handler returns the configured HTTP handler with middleware
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	// CorrelationID wraps everything so logs and panics carry the id
	r.Use(middleware.CorrelationID)
	r.Use(middleware.Logging)
	r.Use(middleware.Recovery)
	r.Use(middleware.CORS(rt.corsConfig))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/health", rt.healthHandler.Health)
	r.Get("/ready", rt.healthHandler.Ready)

	ch := rt.contextHandler
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/transcripts/{videoID}", ch.Transcript)

		r.Route("/contexts/{contextID}", func(r chi.Router) {
			r.Delete("/", ch.Teardown)
			r.Post("/transcribe", ch.Transcribe)
			r.Post("/prefetch", ch.Prefetch)
			r.Post("/cancel", ch.Cancel)
			r.Get("/job", ch.Job)
			r.Get("/events", ch.Events)
			r.Get("/turns", ch.Turns)
			r.Post("/turns", ch.Ask)
			r.Delete("/turns", ch.RemoveTurn)
			r.Post("/turns/abandon", ch.AbandonTurn)
			r.Post("/suggestions", ch.Suggest)
			r.Post("/heartbeat", ch.Heartbeat)
		})
	})

	return r
}
