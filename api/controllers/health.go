package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/nokasa/pickup-backend/api/responses"
	"github.com/nokasa/pickup-backend/pkg/config"
	pkgerrors "github.com/nokasa/pickup-backend/pkg/errors"
	"github.com/nokasa/pickup-backend/pkg/logger"
	pkgredis "github.com/nokasa/pickup-backend/pkg/redis"
)

const (
	envHeader    = "X-Pickup-Env"
	readyTimeout = 2 * time.Second
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports ready only when the database and redis answer a ping.
func HealthReady(cfg *config.Config, dbPinger, redisPinger pkgredis.Pinger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		checks := map[string]string{"database": "ok", "redis": "ok"}
		var failed error
		if err := ping(ctx, dbPinger); err != nil {
			checks["database"] = "unavailable"
			failed = err
		}
		if err := ping(ctx, redisPinger); err != nil {
			checks["redis"] = "unavailable"
			failed = err
		}
		if failed != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Wrap(pkgerrors.CodeDependency, failed, "readiness check failed").WithDetails(checks))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}

func ping(ctx context.Context, p pkgredis.Pinger) error {
	if p == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "pinger not configured")
	}
	return p.Ping(ctx)
}
