package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"mongo-bridge/internal/middleware"
)

// RouterConfig holds what NewRouter needs besides the handler.
type RouterConfig struct {
	AllowedOrigins []string
	// RateLimiter is optional; nil disables rate limiting.
	RateLimiter *middleware.RateLimiter
	// Metrics is optional; nil leaves /metrics unrouted.
	Metrics http.Handler
	Logger  *slog.Logger
}

// NewRouter builds the chi router. The bridge endpoints accept any method,
// matching the datasource plugin, which posts to them.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"accept", "content-type"},
		ExposedHeaders: []string{middleware.RequestIDHeader},
	}))

	r.Get("/healthz", h.Health)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Group(func(r chi.Router) {
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter.Handler)
		}
		r.HandleFunc("/", h.TestConnection)
		r.HandleFunc("/search", h.Search)
		r.HandleFunc("/query", h.Query)
	})

	return r
}
