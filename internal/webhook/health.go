package webhook

import (
	"context"
	"net/http"
	"time"

	"github.com/soundforge/Tempo/internal/config"
	"github.com/soundforge/Tempo/pkg/types"
)

// Pinger is anything that can answer a liveness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler is the read-only status surface. It reports configuration
// presence per provider, never secret values.
type HealthHandler struct {
	cfg   *config.Config
	db    Pinger
	redis Pinger
}

func NewHealthHandler(cfg *config.Config, db, redis Pinger) *HealthHandler {
	return &HealthHandler{
		cfg:   cfg,
		db:    db,
		redis: redis,
	}
}

func (h *HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := types.HealthResponse{
		Status: "ok",
		Providers: map[string]types.ProviderHealth{
			string(types.ProviderStripe): {Configured: h.cfg.StripeConfigured()},
			string(types.ProviderPayPal): {Configured: h.cfg.PayPalConfigured()},
		},
		Database: h.db.Ping(ctx) == nil,
		Redis:    h.redis.Ping(ctx) == nil,
	}

	status := http.StatusOK
	if !resp.Database || !resp.Redis {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
