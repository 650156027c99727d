// Package api exposes the roulette coordinator over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/roach88/roulette/internal/model"
	"github.com/roach88/roulette/internal/pools"
)

// Service is the part of session.Coordinator the API needs.
type Service interface {
	Draw(ctx context.Context, poolID, userID string) (model.DrawResult, error)
	DrawMany(ctx context.Context, poolID string, userIDs []string) ([]model.DrawRecord, error)
	History(ctx context.Context, poolID, userID string, limit int) ([]model.DrawRecord, error)
	Stats(ctx context.Context, poolID, userID string, since, until time.Time) (model.Stats, error)
	PoolUpdated(ctx context.Context, p model.Pool) (*model.Snapshot, bool, error)
	Restrict(ctx context.Context, poolID string, r model.Restriction) (*model.Snapshot, bool, error)
	Pool(poolID string) (*model.Snapshot, error)
	Pools() []pools.Info
}

// Config for the HTTP API handler.
type Config struct {
	Service Service

	// Health reports storage reachability for /healthz. Optional.
	Health func(ctx context.Context) error

	// AllowedOrigins enables CORS for browser clients. Empty disables it.
	AllowedOrigins []string

	Logger *slog.Logger
}

// New returns an HTTP handler exposing the roulette API.
func New(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{svc: cfg.Service, health: cfg.Health, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         60 * 15,
		}))
	}

	r.Get("/healthz", h.healthz)
	r.Route("/pools", func(rr chi.Router) {
		rr.Get("/", h.listPools)
		rr.Route("/{poolID}", func(pr chi.Router) {
			pr.Get("/", h.getPool)
			pr.Put("/", h.putPool)
			pr.Post("/draws", h.draw)
			pr.Post("/party-draws", h.drawParty)
			pr.Post("/restrict", h.restrict)
			pr.Get("/users/{userID}/history", h.history)
			pr.Get("/users/{userID}/stats", h.stats)
		})
	})

	return r
}

// requestLogger logs one line per request at debug level, and at warn for
// 5xx responses.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			began := time.Now()
			next.ServeHTTP(ww, r)

			level := slog.LevelDebug
			if ww.Status() >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(began),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
