// Package health contiene los health checks.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/dropDatabas3/hellogate/internal/http/dto"
	"github.com/dropDatabas3/hellogate/internal/http/helpers"
	"github.com/dropDatabas3/hellogate/internal/observability/logger"
)

// Pinger es cualquier dependencia con chequeo de salud (cache, pg).
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type Controllers struct {
	checks map[string]Pinger
}

func NewControllers(checks map[string]Pinger) *Controllers {
	return &Controllers{checks: checks}
}

// Healthz maneja GET /healthz (liveness): siempre 200.
func (c *Controllers) Healthz(w http.ResponseWriter, r *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, dto.HealthResponse{Status: "ok"})
}

// Readyz maneja GET /readyz: 503 si alguna dependencia no responde.
func (c *Controllers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := dto.HealthResponse{Status: "ok", Components: map[string]string{}}
	status := http.StatusOK
	for name, p := range c.checks {
		if err := p.Ping(ctx); err != nil {
			logger.From(ctx).Warn("readiness check failed", logger.Component(name), logger.Err(err))
			resp.Components[name] = "unavailable"
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Components[name] = "ok"
	}
	w.Header().Set("Cache-Control", "no-store")
	helpers.WriteJSON(w, status, resp)
}
