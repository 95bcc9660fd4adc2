package enums

import "fmt"

// StockEventType maps to the stock_events.event_type column.
type StockEventType string

const (
	StockEventReserved  StockEventType = "reserved"
	StockEventReleased  StockEventType = "released"
	StockEventUpdated   StockEventType = "updated"
	StockEventConfirmed StockEventType = "confirmed"
)

var validStockEventTypes = []StockEventType{
	StockEventReserved,
	StockEventReleased,
	StockEventUpdated,
	StockEventConfirmed,
}

// IsValid reports whether the value matches a known stock event type.
func (t StockEventType) IsValid() bool {
	for _, candidate := range validStockEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseStockEventType converts raw input into StockEventType.
func ParseStockEventType(value string) (StockEventType, error) {
	for _, candidate := range validStockEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stock event type %q", value)
}
