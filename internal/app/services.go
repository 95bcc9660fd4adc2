// Package app assembles the stock domain services shared by the API and the
// payments worker.
package app

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/stockmonitor/internal/alerts"
	"github.com/angelmondragon/stockmonitor/internal/stock"
	"github.com/angelmondragon/stockmonitor/internal/stockevents"
	"github.com/angelmondragon/stockmonitor/pkg/config"
	"github.com/angelmondragon/stockmonitor/pkg/db"
	"github.com/angelmondragon/stockmonitor/pkg/logger"
	"github.com/angelmondragon/stockmonitor/pkg/metrics"
	"github.com/angelmondragon/stockmonitor/pkg/outbox"
)

type Services struct {
	Stock  stock.Service
	Alerts *alerts.Engine
	Events stockevents.Service
}

// NewServices wires repositories, the outbox emitter and metrics into the
// stock, alert and event services. Reservation outbox events are enabled only
// when a stock events topic is configured.
func NewServices(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, reg prometheus.Registerer) (*Services, error) {
	if cfg == nil || dbClient == nil {
		return nil, fmt.Errorf("config and database are required")
	}
	conn := dbClient.DB()
	stockMetrics := metrics.NewStockMetrics(reg)
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)

	events, err := stockevents.NewService(stockevents.NewRepository(conn))
	if err != nil {
		return nil, fmt.Errorf("stock events: %w", err)
	}

	engine, err := alerts.NewEngine(alerts.EngineParams{
		Repo:     alerts.NewRepository(conn),
		TxRunner: dbClient,
		Outbox:   emitter,
		Config:   cfg.Alerts,
		Metrics:  stockMetrics,
		Logger:   logg,
	})
	if err != nil {
		return nil, fmt.Errorf("alert engine: %w", err)
	}

	svc, err := stock.NewService(stock.ServiceParams{
		Records:                  stock.NewRecordRepository(conn),
		Reservations:             stock.NewReservationRepository(conn),
		TxRunner:                 dbClient,
		Events:                   events,
		Alerts:                   engine,
		Outbox:                   emitter,
		Config:                   cfg.Reservation,
		PublishReservationEvents: cfg.PubSub.StockEventsTopic != "",
		Metrics:                  stockMetrics,
		Logger:                   logg,
	})
	if err != nil {
		return nil, fmt.Errorf("stock service: %w", err)
	}

	return &Services{Stock: svc, Alerts: engine, Events: events}, nil
}
