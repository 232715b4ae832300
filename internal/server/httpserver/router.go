package httpserver

import (
	"net/http"

	"github.com/yndnr/ledgersnap/internal/telemetry/logger"
)

// RouterConfig holds the handlers behind the router.
type RouterConfig struct {
	// Metrics serves /metrics.
	Metrics http.Handler
	// Health serves /healthz. Nil reports ok unconditionally.
	Health *Health
	Logger logger.Logger
}

// NewRouter creates the handler for the operational endpoints.
func NewRouter(cfg RouterConfig) http.Handler {
	l := cfg.Logger
	if l == nil {
		l = logger.Default()
	}
	health := cfg.Health
	if health == nil {
		health = NewHealth()
	}

	mux := http.NewServeMux()
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}
	mux.Handle("GET /healthz", health)

	return Chain(mux, RequestID(), Recover(l), AccessLog(l))
}
