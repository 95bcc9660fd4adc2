package models

import (
	"time"

	"github.com/google/uuid"
)

// AlertConfig overrides the default alert thresholds for one product.
type AlertConfig struct {
	ProductID         uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey" json:"product_id"`
	LowStockThreshold int       `gorm:"column:low_stock_threshold;not null;default:10" json:"low_stock_threshold"`
	CriticalThreshold int       `gorm:"column:critical_threshold;not null;default:5" json:"critical_threshold"`
	CreatedAt         time.Time `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt         time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (AlertConfig) TableName() string {
	return "product_alert_configs"
}
