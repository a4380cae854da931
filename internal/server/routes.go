package server

import (
	"log/slog"
	"net/http"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
	// Recorder, if set, records request counts and latencies.
	Recorder RequestRecorder
	// MetricsHandler, if set, is served at GET /metrics.
	MetricsHandler http.Handler
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	// Register routes with method-based patterns (Go 1.22+)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /stitches", h.CreateStitch)
	mux.HandleFunc("GET /stitches", h.ListStitches)
	mux.HandleFunc("GET /stitches/{id}", h.GetStitch)
	mux.HandleFunc("GET /stitches/{id}/audio", h.GetStitchAudio)
	mux.HandleFunc("DELETE /stitches/{id}", h.DeleteStitch)
	if cfg.MetricsHandler != nil {
		mux.Handle("GET /metrics", cfg.MetricsHandler)
	}

	// Apply middleware chain
	middlewares := []func(http.Handler) http.Handler{
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
	}
	if cfg.Recorder != nil {
		middlewares = append(middlewares, MetricsMiddleware(cfg.Recorder))
	}
	middlewares = append(middlewares, CORSMiddleware(cfg.AllowedOrigins))

	return ChainMiddleware(middlewares...)(mux)
}
