package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/stockmonitor/internal/alerts"
	"github.com/angelmondragon/stockmonitor/pkg/logger"
)

type alertScanner interface {
	Scan(ctx context.Context, threshold *int) (*alerts.ScanResult, error)
}

type StockAlertScanJobParams struct {
	Logger  *logger.Logger
	Scanner alertScanner
}

// NewStockAlertScanJob polls the alert engine with per-product thresholds.
func NewStockAlertScanJob(params StockAlertScanJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Scanner == nil {
		return nil, fmt.Errorf("alert scanner required")
	}
	return &stockAlertScanJob{logg: params.Logger, scanner: params.Scanner}, nil
}

type stockAlertScanJob struct {
	logg    *logger.Logger
	scanner alertScanner
}

func (j *stockAlertScanJob) Name() string { return "stock-alert-scan" }

func (j *stockAlertScanJob) Run(ctx context.Context) error {
	result, err := j.scanner.Scan(ctx, nil)
	if err != nil {
		return fmt.Errorf("scan stock alerts: %w", err)
	}
	j.logg.Debug(j.logg.WithField(ctx, "open_alerts", len(result.Alerts)), result.Message)
	return nil
}
