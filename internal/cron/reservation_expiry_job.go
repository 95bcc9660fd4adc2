package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/stockmonitor/pkg/logger"
	"github.com/angelmondragon/stockmonitor/pkg/metrics"
)

const (
	defaultExpiryBatchSize = 500
	maxExpiryBatches       = 100
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type reservationExpirer interface {
	ExpireStale(ctx context.Context, tx *gorm.DB, now time.Time, limit int) (int64, error)
}

// ReservationExpiryJobParams configure the reservation sweeper.
type ReservationExpiryJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Expirer   reservationExpirer
	Metrics   *metrics.StockMetrics
	BatchSize int
}

// NewReservationExpiryJob builds the job that marks lapsed holds expired.
// Availability already ignores them; the sweep keeps status columns honest
// and the active-hold index small.
func NewReservationExpiryJob(params ReservationExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Expirer == nil {
		return nil, fmt.Errorf("reservation expirer required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatchSize
	}
	return &reservationExpiryJob{
		logg:    params.Logger,
		db:      params.DB,
		expirer: params.Expirer,
		metrics: params.Metrics,
		batch:   batch,
		now:     time.Now,
	}, nil
}

type reservationExpiryJob struct {
	logg    *logger.Logger
	db      txRunner
	expirer reservationExpirer
	metrics *metrics.StockMetrics
	batch   int
	now     func() time.Time
}

func (j *reservationExpiryJob) Name() string { return "reservation-expiry" }

func (j *reservationExpiryJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	var total int64
	for i := 0; i < maxExpiryBatches; i++ {
		var expired int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			rows, err := j.expirer.ExpireStale(ctx, tx, now, j.batch)
			expired = rows
			return err
		})
		if err != nil {
			return fmt.Errorf("expire reservations: %w", err)
		}
		total += expired
		j.metrics.AddExpired(int(expired))
		if expired < int64(j.batch) {
			break
		}
	}

	if total > 0 {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"expired":    total,
			"batch_size": j.batch,
			"cutoff":     now,
		})
		j.logg.Info(logCtx, "stale reservations expired")
	}
	return nil
}
