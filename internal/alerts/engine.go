package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockmonitor/pkg/config"
	"github.com/angelmondragon/stockmonitor/pkg/db/models"
	"github.com/angelmondragon/stockmonitor/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockmonitor/pkg/errors"
	"github.com/angelmondragon/stockmonitor/pkg/logger"
	"github.com/angelmondragon/stockmonitor/pkg/metrics"
	"github.com/angelmondragon/stockmonitor/pkg/outbox"
	"github.com/angelmondragon/stockmonitor/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// EngineParams configures the alert engine. Outbox, Metrics and Logger are
// optional.
type EngineParams struct {
	Repo     Repository
	TxRunner txRunner
	Outbox   outboxPublisher
	Config   config.AlertsConfig
	Metrics  *metrics.StockMetrics
	Logger   *logger.Logger
	Now      func() time.Time
}

// Engine evaluates stock levels against thresholds and persists alerts.
type Engine struct {
	repo            Repository
	tx              txRunner
	outbox          outboxPublisher
	defaults        Thresholds
	suppressRepeats bool
	autoResolve     bool
	metrics         *metrics.StockMetrics
	logg            *logger.Logger
	now             func() time.Time
}

func NewEngine(params EngineParams) (*Engine, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("alert repository required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{
		repo:            params.Repo,
		tx:              params.TxRunner,
		outbox:          params.Outbox,
		defaults:        ThresholdsFromConfig(params.Config),
		suppressRepeats: params.Config.SuppressRepeats,
		autoResolve:     params.Config.AutoResolve,
		metrics:         params.Metrics,
		logg:            params.Logger,
		now:             now,
	}, nil
}

// EvaluateVariant classifies one freshly written record using its product's
// thresholds. It runs inside the caller's transaction and returns only the
// alerts created by this call.
func (e *Engine) EvaluateVariant(ctx context.Context, tx *gorm.DB, record models.StockRecord) ([]models.StockAlert, error) {
	repo := e.repo.WithTx(tx)
	cfg, err := repo.FindConfig(ctx, record.ProductID)
	if err != nil {
		return nil, fmt.Errorf("load alert config: %w", err)
	}
	classification, ok := Classify(record.Quantity, Resolve(cfg, e.defaults))

	alert, created, err := e.apply(ctx, tx, record, classification, ok)
	if err != nil {
		return nil, err
	}
	if alert == nil || !created {
		return []models.StockAlert{}, nil
	}
	return []models.StockAlert{*alert}, nil
}

// Scan checks every variant at or below the threshold. With a nil override
// each product's own low threshold applies.
func (e *Engine) Scan(ctx context.Context, threshold *int) (*ScanResult, error) {
	if threshold != nil && *threshold < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "threshold must be zero or greater")
	}

	alerts := []models.StockAlert{}
	created := 0
	err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := e.repo.WithTx(tx)
		candidates, err := repo.ListCandidates(ctx, threshold, e.defaults.Low)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list alert candidates")
		}
		for _, candidate := range candidates {
			record, err := repo.LockVariant(ctx, candidate.Record.ProductID, candidate.Record.SizeID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					continue
				}
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock stock record")
			}

			th := Resolve(candidate.Config, e.defaults)
			var (
				classification Classification
				ok             bool
			)
			if threshold != nil {
				classification, ok = ClassifyWithOverride(record.Quantity, *threshold, th)
			} else {
				classification, ok = Classify(record.Quantity, th)
			}

			alert, isNew, err := e.apply(ctx, tx, *record, classification, ok)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "raise alert")
			}
			if alert == nil {
				continue
			}
			if isNew {
				created++
			}
			alerts = append(alerts, *alert)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if e.logg != nil {
		fields := map[string]any{"alerts": len(alerts), "created": created}
		if threshold != nil {
			fields["threshold"] = *threshold
		}
		e.logg.Info(e.logg.WithFields(ctx, fields), "stock alert scan finished")
	}
	return &ScanResult{
		Alerts:  alerts,
		Message: fmt.Sprintf("%d variants need attention, %d new alerts", len(alerts), created),
	}, nil
}

// apply enforces the dedup policy for one variant. It returns the alert that
// represents the variant's current band and whether it was created now.
func (e *Engine) apply(ctx context.Context, tx *gorm.DB, record models.StockRecord, classification Classification, qualifies bool) (*models.StockAlert, bool, error) {
	repo := e.repo.WithTx(tx)
	now := e.now()

	if !qualifies {
		if e.autoResolve {
			if _, err := repo.AcknowledgeOpen(ctx, record.ProductID, record.SizeID, nil, now); err != nil {
				return nil, false, fmt.Errorf("resolve open alerts: %w", err)
			}
		}
		return nil, false, nil
	}

	if e.autoResolve {
		keep := classification.Type
		if _, err := repo.AcknowledgeOpen(ctx, record.ProductID, record.SizeID, &keep, now); err != nil {
			return nil, false, fmt.Errorf("resolve superseded alerts: %w", err)
		}
	}

	if e.suppressRepeats {
		open, err := repo.FindOpen(ctx, record.ProductID, record.SizeID, classification.Type)
		if err != nil {
			return nil, false, fmt.Errorf("find open alert: %w", err)
		}
		if open != nil {
			// the stored row keeps the quantity at first breach
			current := *open
			current.CurrentStock = record.Quantity
			return &current, false, nil
		}
	}

	alert := &models.StockAlert{
		ID:           uuid.New(),
		ProductID:    record.ProductID,
		SizeID:       record.SizeID,
		CurrentStock: record.Quantity,
		Threshold:    classification.Threshold,
		AlertType:    classification.Type,
		Status:       enums.StockAlertStatusActive,
		CreatedAt:    now,
	}
	if err := repo.Create(ctx, alert); err != nil {
		return nil, false, fmt.Errorf("create alert: %w", err)
	}

	if e.outbox != nil {
		if err := e.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventStockAlertRaised,
			AggregateType: enums.AggregateStockAlert,
			AggregateID:   alert.ID,
			OccurredAt:    now,
			Data: payloads.StockAlertRaisedEvent{
				AlertID:      alert.ID,
				ProductID:    alert.ProductID,
				SizeID:       alert.SizeID,
				AlertType:    alert.AlertType,
				CurrentStock: alert.CurrentStock,
				Threshold:    alert.Threshold,
				CreatedAt:    alert.CreatedAt,
			},
		}); err != nil {
			return nil, false, fmt.Errorf("emit stock alert: %w", err)
		}
	}

	e.metrics.IncAlert(string(alert.AlertType))
	if e.logg != nil {
		logCtx := e.logg.WithVariant(ctx, record.ProductID.String(), record.SizeID.String())
		logCtx = e.logg.WithFields(logCtx, map[string]any{
			"alert_id":      alert.ID.String(),
			"alert_type":    alert.AlertType,
			"current_stock": alert.CurrentStock,
			"threshold":     alert.Threshold,
		})
		e.logg.Warn(logCtx, "stock alert raised")
	}
	return alert, true, nil
}

// Acknowledge marks an alert as seen. Acknowledging twice is a no-op.
func (e *Engine) Acknowledge(ctx context.Context, alertID uuid.UUID) (*AcknowledgeResult, error) {
	if alertID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "alert_id is required")
	}

	var result *AcknowledgeResult
	err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := e.repo.WithTx(tx)
		applied, err := repo.Acknowledge(ctx, alertID, e.now())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "acknowledge alert")
		}
		alert, err := repo.FindByID(ctx, alertID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "alert not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load alert")
		}
		result = &AcknowledgeResult{Alert: *alert, AlreadyAcknowledged: !applied}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SetConfig stores a product's thresholds. The next evaluation of any of the
// product's variants uses them.
func (e *Engine) SetConfig(ctx context.Context, input ConfigInput) (*models.AlertConfig, error) {
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product_id is required")
	}
	th := Thresholds{Low: input.LowStockThreshold, Critical: input.CriticalThreshold}
	if !th.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "thresholds must be non-negative and critical_threshold must not exceed low_stock_threshold").
			WithDetails(map[string]any{
				"low_stock_threshold": input.LowStockThreshold,
				"critical_threshold":  input.CriticalThreshold,
			})
	}

	now := e.now()
	cfg := &models.AlertConfig{
		ProductID:         input.ProductID,
		LowStockThreshold: th.Low,
		CriticalThreshold: th.Critical,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := e.repo.WithTx(tx)
		if err := repo.UpsertConfig(ctx, cfg); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store alert config")
		}
		stored, err := repo.FindConfig(ctx, input.ProductID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload alert config")
		}
		cfg = stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// ListOpen returns the most recent unacknowledged alerts.
func (e *Engine) ListOpen(ctx context.Context, limit int) ([]models.StockAlert, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	alerts, err := e.repo.ListOpen(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list open alerts")
	}
	return alerts, nil
}
