package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockmonitor/pkg/enums"
)

// StockAlert is produced by the alert engine. Only Status and
// AcknowledgedAt change after insert.
type StockAlert struct {
	ID             uuid.UUID              `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ProductID      uuid.UUID              `gorm:"column:product_id;type:uuid;not null;index:idx_stock_alerts_variant_status,priority:1" json:"product_id"`
	SizeID         uuid.UUID              `gorm:"column:size_id;type:uuid;not null;index:idx_stock_alerts_variant_status,priority:2" json:"size_id"`
	CurrentStock   int                    `gorm:"column:current_stock;not null" json:"current_stock"`
	Threshold      int                    `gorm:"column:threshold;not null" json:"threshold"`
	AlertType      enums.StockAlertType   `gorm:"column:alert_type;type:text;not null" json:"alert_type"`
	Status         enums.StockAlertStatus `gorm:"column:status;type:text;not null;index:idx_stock_alerts_variant_status,priority:3" json:"status"`
	CreatedAt      time.Time              `gorm:"column:created_at;not null" json:"created_at"`
	AcknowledgedAt *time.Time             `gorm:"column:acknowledged_at" json:"acknowledged_at,omitempty"`
}
