package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockmonitor/pkg/enums"
)

// StockReservation is a time-boxed hold against a StockRecord.
type StockReservation struct {
	ID        uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	ProductID uuid.UUID               `gorm:"column:product_id;type:uuid;not null;index:idx_stock_reservations_variant_status,priority:1"`
	SizeID    uuid.UUID               `gorm:"column:size_id;type:uuid;not null;index:idx_stock_reservations_variant_status,priority:2"`
	Quantity  int                     `gorm:"column:quantity;not null;check:quantity > 0"`
	UserID    uuid.UUID               `gorm:"column:user_id;type:uuid;not null"`
	Status    enums.ReservationStatus `gorm:"column:status;type:text;not null;index:idx_stock_reservations_variant_status,priority:3"`
	CreatedAt time.Time               `gorm:"column:created_at;not null"`
	UpdatedAt time.Time               `gorm:"column:updated_at;not null"`
	ExpiresAt time.Time               `gorm:"column:expires_at;not null;index:idx_stock_reservations_variant_status,priority:4"`
}

// CountsAgainstStock reports whether the hold still reduces availability at now.
func (r StockReservation) CountsAgainstStock(now time.Time) bool {
	return r.Status == enums.ReservationStatusActive && now.Before(r.ExpiresAt)
}
