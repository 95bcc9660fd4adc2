package stock

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Expirer exposes the reservation sweep to the cron worker.
type Expirer struct {
	reservations ReservationRepository
}

func NewExpirer(reservations ReservationRepository) *Expirer {
	return &Expirer{reservations: reservations}
}

// ExpireStale flips up to limit lapsed holds to expired inside tx.
func (e *Expirer) ExpireStale(ctx context.Context, tx *gorm.DB, now time.Time, limit int) (int64, error) {
	return e.reservations.WithTx(tx).ExpireStale(ctx, now, limit)
}
