package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/stockmonitor/api/controllers"
	"github.com/angelmondragon/stockmonitor/api/middleware"
	"github.com/angelmondragon/stockmonitor/internal/alerts"
	"github.com/angelmondragon/stockmonitor/internal/stock"
	"github.com/angelmondragon/stockmonitor/internal/stockevents"
	"github.com/angelmondragon/stockmonitor/pkg/config"
	"github.com/angelmondragon/stockmonitor/pkg/db"
	"github.com/angelmondragon/stockmonitor/pkg/logger"
)

// StockMonitorPath is the single action-dispatched endpoint.
const StockMonitorPath = "/api/v1/stock-monitor"

// RequestStore is the redis surface the API middleware needs.
type RequestStore interface {
	middleware.ReplayStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	store RequestStore,
	gatherer prometheus.Gatherer,
	stockService stock.Service,
	alertEngine *alerts.Engine,
	eventService stockevents.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.Service.AllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    dbP,
			"redis": store,
		}))
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	rateLimit := middleware.RateLimit(middleware.RateLimitPolicy{
		Name:      "stock-monitor",
		Window:    cfg.Service.RateLimitWindow,
		IPLimit:   cfg.Service.RateLimitPerIP,
		UserLimit: cfg.Service.RateLimitPerUser,
	}, store, logg)
	idempotency := middleware.Idempotency(store, middleware.IdempotencyOptions{
		Routes:      []string{StockMonitorPath},
		TTL:         cfg.Service.IdempotencyTTL,
		InFlightTTL: cfg.Service.IdempotencyInFlightTTL,
		Require:     cfg.FeatureFlags.RequireIdemKey,
	}, logg)

	r.With(rateLimit, idempotency).Post(StockMonitorPath, controllers.StockMonitor(stockService, alertEngine, eventService, logg))

	return r
}
