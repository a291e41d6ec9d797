package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/meridian-gl/meridian-gl/internal/observability"
	"github.com/meridian-gl/meridian-gl/internal/platform/httpx"
	"github.com/meridian-gl/meridian-gl/jobs"
)

// RouterParams groups dependencies for building the operational router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *observability.Metrics
	Jobs    *jobs.Handler
}

// NewRouter constructs the operational surface: liveness, readiness and
// metrics. The ledger itself is driven through the Go APIs and the worker;
// this process exposes nothing else over HTTP.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Readiness gates on Postgres only. The report cache degrades to
	// building fresh when Redis is away, so it reports but never blocks.
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()

		checks := map[string]string{"postgres": "ok", "redis": "ok"}
		ready := true
		if params.Pool == nil {
			checks["postgres"] = "absent"
			ready = false
		} else if err := params.Pool.Ping(ctx); err != nil {
			checks["postgres"] = err.Error()
			ready = false
		}
		if params.Redis == nil {
			checks["redis"] = "disabled"
		} else if err := params.Redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = err.Error()
		}

		status := http.StatusOK
		body := map[string]any{"status": "ready", "checks": checks}
		if !ready {
			status = http.StatusServiceUnavailable
			body["status"] = "unavailable"
		}
		httpx.JSON(w, status, body)
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.Jobs != nil {
		r.Route("/jobs", params.Jobs.MountRoutes)
	}

	return r
}
