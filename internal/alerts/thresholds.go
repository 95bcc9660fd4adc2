package alerts

import (
	"github.com/angelmondragon/stockmonitor/pkg/config"
	"github.com/angelmondragon/stockmonitor/pkg/db/models"
	"github.com/angelmondragon/stockmonitor/pkg/enums"
)

// Thresholds are inclusive upper bounds: quantity <= Low is low stock,
// quantity <= Critical is critical.
type Thresholds struct {
	Low      int
	Critical int
}

// DefaultThresholds apply when neither configuration nor a product override exists.
var DefaultThresholds = Thresholds{Low: 10, Critical: 5}

// ThresholdsFromConfig reads the process-wide fallback thresholds.
func ThresholdsFromConfig(cfg config.AlertsConfig) Thresholds {
	t := Thresholds{Low: cfg.DefaultLowThreshold, Critical: cfg.DefaultCriticalThreshold}
	if !t.Valid() {
		return DefaultThresholds
	}
	return t
}

// Valid reports whether both bounds are non-negative and ordered.
func (t Thresholds) Valid() bool {
	return t.Low >= 0 && t.Critical >= 0 && t.Critical <= t.Low
}

// Resolve prefers the product's own configuration over the defaults.
func Resolve(cfg *models.AlertConfig, defaults Thresholds) Thresholds {
	if cfg == nil {
		return defaults
	}
	t := Thresholds{Low: cfg.LowStockThreshold, Critical: cfg.CriticalThreshold}
	if !t.Valid() {
		return defaults
	}
	return t
}

// Classification is the outcome of checking one quantity against thresholds.
type Classification struct {
	Type      enums.StockAlertType
	Threshold int
}

// Classify maps a quantity onto an alert band. The boolean is false when the
// quantity is above every threshold.
func Classify(quantity int, t Thresholds) (Classification, bool) {
	return classify(quantity, t.Low, t.Critical)
}

// ClassifyWithOverride classifies against a caller supplied low threshold
// while keeping the per-product critical bound.
func ClassifyWithOverride(quantity, override int, t Thresholds) (Classification, bool) {
	critical := t.Critical
	if critical > override {
		critical = override
	}
	return classify(quantity, override, critical)
}

func classify(quantity, low, critical int) (Classification, bool) {
	switch {
	case quantity <= 0:
		return Classification{Type: enums.StockAlertOutOfStock, Threshold: 0}, true
	case quantity <= critical:
		return Classification{Type: enums.StockAlertCritical, Threshold: critical}, true
	case quantity <= low:
		return Classification{Type: enums.StockAlertLowStock, Threshold: low}, true
	default:
		return Classification{}, false
	}
}
