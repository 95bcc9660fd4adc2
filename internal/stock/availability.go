package stock

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/stockmonitor/pkg/db/models"
)

// Availability is derived on demand and never stored.
type Availability struct {
	Quantity  int
	Reserved  int
	Available int
}

// NewAvailability computes quantity minus reserved, clamped at zero. A
// correction can push quantity below the units already held.
func NewAvailability(quantity, reserved int) Availability {
	available := quantity - reserved
	if available < 0 {
		available = 0
	}
	return Availability{Quantity: quantity, Reserved: reserved, Available: available}
}

// CanReserve reports whether requested units fit in what is left.
func (a Availability) CanReserve(requested int) bool {
	return requested > 0 && requested <= a.Available
}

// Calculator combines the ledger with live reservations.
type Calculator struct {
	reservations ReservationRepository
}

func NewCalculator(reservations ReservationRepository) *Calculator {
	return &Calculator{reservations: reservations}
}

// ForVariant runs inside the caller's transaction so the result is consistent
// with the stock row lock the caller holds.
func (c *Calculator) ForVariant(ctx context.Context, tx *gorm.DB, record models.StockRecord, now time.Time) (Availability, error) {
	reserved, err := c.reservations.WithTx(tx).SumActive(ctx, record.ProductID, record.SizeID, now)
	if err != nil {
		return Availability{}, err
	}
	return NewAvailability(record.Quantity, reserved), nil
}

// ForRecords computes availability for a listing with a single grouped query.
func (c *Calculator) ForRecords(ctx context.Context, tx *gorm.DB, records []models.StockRecord, filter RecordFilter, now time.Time) ([]StockView, error) {
	views := make([]StockView, 0, len(records))
	if len(records) == 0 {
		return views, nil
	}
	totals, err := c.reservations.WithTx(tx).SumActiveByVariant(ctx, filter, now)
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		reserved := totals[VariantKey{ProductID: record.ProductID, SizeID: record.SizeID}]
		views = append(views, newStockView(record, NewAvailability(record.Quantity, reserved)))
	}
	return views, nil
}
