package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockmonitor/pkg/enums"
)

// StockEvent is an append-only audit row for every stock mutation.
type StockEvent struct {
	ID            uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	ProductID     uuid.UUID            `gorm:"column:product_id;type:uuid;not null;index:idx_stock_events_variant_created,priority:1"`
	SizeID        uuid.UUID            `gorm:"column:size_id;type:uuid;not null;index:idx_stock_events_variant_created,priority:2"`
	EventType     enums.StockEventType `gorm:"column:event_type;type:text;not null"`
	Quantity      int                  `gorm:"column:quantity;not null"`
	UserID        *uuid.UUID           `gorm:"column:user_id;type:uuid"`
	ReservationID *uuid.UUID           `gorm:"column:reservation_id;type:uuid;index"`
	CreatedAt     time.Time            `gorm:"column:created_at;not null;index:idx_stock_events_variant_created,priority:3"`
}
