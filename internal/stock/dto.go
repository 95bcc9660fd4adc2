package stock

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockmonitor/pkg/db/models"
	"github.com/angelmondragon/stockmonitor/pkg/enums"
)

// CheckInput optionally narrows a stock check to a product and/or size.
type CheckInput struct {
	ProductID *uuid.UUID
	SizeID    *uuid.UUID
}

// StockView is a stock record decorated with live availability.
type StockView struct {
	ProductID         uuid.UUID `json:"product_id"`
	SizeID            uuid.UUID `json:"size_id"`
	Quantity          int       `json:"quantity"`
	UpdatedAt         time.Time `json:"updated_at"`
	ReservedQuantity  int       `json:"reserved_quantity"`
	AvailableQuantity int       `json:"available_quantity"`
}

func newStockView(record models.StockRecord, availability Availability) StockView {
	return StockView{
		ProductID:         record.ProductID,
		SizeID:            record.SizeID,
		Quantity:          record.Quantity,
		UpdatedAt:         record.UpdatedAt,
		ReservedQuantity:  availability.Reserved,
		AvailableQuantity: availability.Available,
	}
}

type ReserveInput struct {
	ProductID uuid.UUID
	SizeID    uuid.UUID
	Quantity  int
	UserID    uuid.UUID
}

type ReservationResult struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	ExpiresAt     time.Time `json:"expires_at"`
	Message       string    `json:"message"`
}

// ReleaseResult reports the reservation state after a release. Releasing a
// hold that is already terminal succeeds with AlreadyTerminal set.
type ReleaseResult struct {
	ReservationID   uuid.UUID               `json:"reservation_id"`
	Status          enums.ReservationStatus `json:"status"`
	AlreadyTerminal bool                    `json:"already_terminal"`
	Message         string                  `json:"message"`
}

type ConfirmResult struct {
	ReservationID     uuid.UUID               `json:"reservation_id"`
	Status            enums.ReservationStatus `json:"status"`
	AlreadyConfirmed  bool                    `json:"already_confirmed"`
	RemainingQuantity int                     `json:"remaining_quantity"`
	Alerts            []models.StockAlert     `json:"alerts"`
	Message           string                  `json:"message"`
}

// UpdateInput sets a variant's physical quantity to an absolute value.
type UpdateInput struct {
	ProductID uuid.UUID
	SizeID    uuid.UUID
	Quantity  int
	UserID    *uuid.UUID
}

type UpdateResult struct {
	Stock   StockView           `json:"stock"`
	Alerts  []models.StockAlert `json:"alerts"`
	Message string              `json:"message"`
}
