package controllers

import (
	"net/http"

	"github.com/mgiraldo-dev/canteen-backend/api/responses"
	"github.com/mgiraldo-dev/canteen-backend/pkg/config"
	"github.com/mgiraldo-dev/canteen-backend/pkg/logger"
	"github.com/mgiraldo-dev/canteen-backend/pkg/redis"
	"github.com/mgiraldo-dev/canteen-backend/pkg/store"
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Canteen-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings the store and, when configured, the redis change bus.
// The bus is optional infrastructure, so its failure degrades the report but
// does not fail readiness.
func HealthReady(cfg *config.Config, logg *logger.Logger, st store.Client, bus *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Canteen-Env", cfg.App.Env)

		checks := map[string]string{"store": "ok"}
		if err := st.Ping(r.Context()); err != nil {
			if logg != nil {
				logg.Error(r.Context(), "store ping failed", err)
			}
			responses.WriteSuccessStatus(w, http.StatusServiceUnavailable, map[string]any{
				"status": "degraded",
				"checks": map[string]string{"store": "down"},
			})
			return
		}

		if bus != nil {
			checks["redis"] = "ok"
			if err := bus.Ping(r.Context()); err != nil {
				if logg != nil {
					logg.Error(r.Context(), "redis ping failed", err)
				}
				checks["redis"] = "down"
			}
		}

		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
