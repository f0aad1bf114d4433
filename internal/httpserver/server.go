package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/strixun/edgecore/internal/config"
	"github.com/strixun/edgecore/internal/version"
)

// Server holds the HTTP server dependencies shared across every mounted
// component (identity, entity, integrity, API-client edge routes).
type Server struct {
	Router    *chi.Mux
	Logger    *slog.Logger
	DB        *pgxpool.Pool // nil when no legacy Postgres source is configured
	Redis     *redis.Client
	Metrics   *prometheus.Registry
	startedAt time.Time
}

// NewServer creates the root HTTP router with ambient middleware and the
// unauthenticated health/metrics endpoints mounted. Domain routers (identity,
// entity, integrity, apiclient edge) are mounted by the caller afterward.
func NewServer(cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) *Server {
	s := &Server{
		Router:    chi.NewRouter(),
		Logger:    logger,
		DB:        db,
		Redis:     rdb,
		Metrics:   metricsReg,
		startedAt: time.Now(),
	}

	s.Router.Use(RequestID)
	s.Router.Use(Logger(logger))
	s.Router.Use(Metrics)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Strixun-Request-Integrity", "X-Strixun-Request-Timestamp", "X-Customer-ID", "X-CSRF-Token", "X-Service-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.Router.Get("/healthz", s.handleHealthz)
	s.Router.Get("/readyz", s.handleReadyz)
	s.Router.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz checks Redis (always required) and Postgres (only when a
// legacy migration source is configured).
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := s.Redis.Ping(ctx).Err(); err != nil {
		s.Logger.Error("readiness check: redis ping failed", "error", err)
		RespondError(w, http.StatusServiceUnavailable, "unavailable", "redis not ready")
		return
	}

	if s.DB != nil {
		if err := s.DB.Ping(ctx); err != nil {
			s.Logger.Error("readiness check: database ping failed", "error", err)
			RespondError(w, http.StatusServiceUnavailable, "unavailable", "database not ready")
			return
		}
	}

	Respond(w, http.StatusOK, map[string]string{"status": "ready"})
}

// statusResponse is the JSON shape returned by HandleStatus.
type statusResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Commit        string `json:"commit"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
	Redis         string `json:"redis"`
	Database      string `json:"database"`
}

// HandleStatus reports build and connectivity information. Mounted by the
// caller wherever an authenticated diagnostics route is appropriate.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := statusResponse{
		Version:       version.Version,
		Commit:        version.Commit,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Redis:         "ok",
		Database:      "n/a",
	}

	if err := s.Redis.Ping(ctx).Err(); err != nil {
		resp.Redis = "error"
	}
	if s.DB != nil {
		if err := s.DB.Ping(ctx); err != nil {
			resp.Database = "error"
		} else {
			resp.Database = "ok"
		}
	}

	if resp.Redis == "ok" && resp.Database != "error" {
		resp.Status = "ok"
	} else {
		resp.Status = "degraded"
	}

	Respond(w, http.StatusOK, resp)
}
