package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rfl-designer/e-tupan-sub007/api/handlers"
	"github.com/rfl-designer/e-tupan-sub007/api/middleware"
	"github.com/rfl-designer/e-tupan-sub007/pkg/config"
	"github.com/rfl-designer/e-tupan-sub007/pkg/logger"
)

// NewOpsRouter builds the operational HTTP surface the worker exposes:
// liveness, readiness and prometheus metrics. Domain traffic never lands here.
func NewOpsRouter(cfg *config.Config, logg *logger.Logger, deps ...handlers.NamedPinger) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Get("/healthz", handlers.Healthz(cfg, logg))
	r.Get("/health/live", handlers.Healthz(cfg, logg))
	r.Get("/health/ready", handlers.Readyz(cfg, logg, deps...))
	r.Handle("/metrics", promhttp.Handler())

	return r
}
