package alerts

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/stockmonitor/pkg/db/models"
)

// ConfigInput sets a product's alert thresholds.
type ConfigInput struct {
	ProductID         uuid.UUID
	LowStockThreshold int
	CriticalThreshold int
}

// ScanResult lists the alerts produced or still open after a scan.
type ScanResult struct {
	Alerts  []models.StockAlert `json:"alerts"`
	Message string              `json:"message"`
}

// AcknowledgeResult carries the alert after acknowledgement.
type AcknowledgeResult struct {
	Alert               models.StockAlert `json:"alert"`
	AlreadyAcknowledged bool              `json:"already_acknowledged"`
}
