package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockmonitor/pkg/enums"
)

// StockAlertRaisedEvent is published whenever the alert engine opens a new alert.
type StockAlertRaisedEvent struct {
	AlertID      uuid.UUID            `json:"alert_id"`
	ProductID    uuid.UUID            `json:"product_id"`
	SizeID       uuid.UUID            `json:"size_id"`
	AlertType    enums.StockAlertType `json:"alert_type"`
	CurrentStock int                  `json:"current_stock"`
	Threshold    int                  `json:"threshold"`
	CreatedAt    time.Time            `json:"created_at"`
}

// ReservationConfirmedEvent reports that a hold was converted into a sale.
type ReservationConfirmedEvent struct {
	ReservationID     uuid.UUID `json:"reservation_id"`
	ProductID         uuid.UUID `json:"product_id"`
	SizeID            uuid.UUID `json:"size_id"`
	UserID            uuid.UUID `json:"user_id"`
	Quantity          int       `json:"quantity"`
	RemainingQuantity int       `json:"remaining_quantity"`
	ConfirmedAt       time.Time `json:"confirmed_at"`
}

// ReservationReleasedEvent reports that a hold was cancelled before expiry.
type ReservationReleasedEvent struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	ProductID     uuid.UUID `json:"product_id"`
	SizeID        uuid.UUID `json:"size_id"`
	UserID        uuid.UUID `json:"user_id"`
	Quantity      int       `json:"quantity"`
	ReleasedAt    time.Time `json:"released_at"`
}
