package models

import (
	"time"

	"github.com/google/uuid"
)

// StockRecord is the authoritative physical quantity for one (product, size)
// variant. Rows are never deleted; zero stock is a valid state.
type StockRecord struct {
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	SizeID    uuid.UUID `gorm:"column:size_id;type:uuid;primaryKey"`
	Quantity  int       `gorm:"column:quantity;not null;default:0;check:quantity >= 0"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}
