package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/rfl-designer/e-tupan-sub007/api/responses"
	"github.com/rfl-designer/e-tupan-sub007/pkg/config"
	pkgerrors "github.com/rfl-designer/e-tupan-sub007/pkg/errors"
	"github.com/rfl-designer/e-tupan-sub007/pkg/logger"
)

const readinessTimeout = 5 * time.Second

// Pinger is anything whose connectivity readiness checks can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NamedPinger pairs a dependency with the name reported when it fails.
type NamedPinger struct {
	Name   string
	Pinger Pinger
}

// Healthz reports process liveness.
func Healthz(cfg *config.Config, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Etupan-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// Readyz probes the worker's dependencies.
func Readyz(cfg *config.Config, logg *logger.Logger, deps ...NamedPinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		w.Header().Set("X-Etupan-Env", cfg.App.Env)
		for _, dep := range deps {
			if dep.Pinger == nil {
				continue
			}
			if err := dep.Pinger.Ping(ctx); err != nil {
				logCtx := logg.WithField(ctx, "dependency", dep.Name)
				logg.Error(logCtx, "readiness probe failed", err)
				responses.WriteError(ctx, logg, w,
					pkgerrors.Wrap(pkgerrors.CodeDependency, err, dep.Name+" unavailable"))
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
