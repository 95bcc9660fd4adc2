package enums

import "fmt"

// StockAlertType classifies how far a variant has fallen below its thresholds.
type StockAlertType string

const (
	StockAlertLowStock   StockAlertType = "low_stock"
	StockAlertCritical   StockAlertType = "critical"
	StockAlertOutOfStock StockAlertType = "out_of_stock"
)

var validStockAlertTypes = []StockAlertType{
	StockAlertLowStock,
	StockAlertCritical,
	StockAlertOutOfStock,
}

func (t StockAlertType) IsValid() bool {
	for _, candidate := range validStockAlertTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseStockAlertType converts raw input into StockAlertType.
func ParseStockAlertType(value string) (StockAlertType, error) {
	for _, candidate := range validStockAlertTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stock alert type %q", value)
}

// StockAlertStatus tracks whether an operator has seen the alert.
type StockAlertStatus string

const (
	StockAlertStatusActive       StockAlertStatus = "active"
	StockAlertStatusAcknowledged StockAlertStatus = "acknowledged"
)

func (s StockAlertStatus) IsValid() bool {
	return s == StockAlertStatusActive || s == StockAlertStatusAcknowledged
}
