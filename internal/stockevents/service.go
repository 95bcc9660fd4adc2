package stockevents

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockmonitor/pkg/db/models"
	"github.com/angelmondragon/stockmonitor/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockmonitor/pkg/errors"
	"github.com/angelmondragon/stockmonitor/pkg/pagination"
)

// Service records and reads stock events.
type Service interface {
	Record(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.StockEvent, error)
	List(ctx context.Context, input ListInput) (*EventList, error)
}

// RecordInput captures one stock mutation.
type RecordInput struct {
	ProductID     uuid.UUID
	SizeID        uuid.UUID
	EventType     enums.StockEventType
	Quantity      int
	UserID        *uuid.UUID
	ReservationID *uuid.UUID
	OccurredAt    time.Time
}

// ListInput filters and pages the event log.
type ListInput struct {
	ProductID     *uuid.UUID
	SizeID        *uuid.UUID
	ReservationID *uuid.UUID
	Limit         int
	Cursor        string
}

// EventView is the API shape of a stock event.
type EventView struct {
	ID            uuid.UUID            `json:"id"`
	ProductID     uuid.UUID            `json:"product_id"`
	SizeID        uuid.UUID            `json:"size_id"`
	EventType     enums.StockEventType `json:"event_type"`
	Quantity      int                  `json:"quantity"`
	UserID        *uuid.UUID           `json:"user_id,omitempty"`
	ReservationID *uuid.UUID           `json:"reservation_id,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
}

// EventList is one page of events, newest first.
type EventList struct {
	Events     []EventView `json:"events"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

type service struct {
	repo Repository
	now  func() time.Time
}

// NewService wires an event service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("stock event repository required")
	}
	return &service{repo: repo, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Record appends an event. When tx is set the row commits with the caller's
// transaction.
func (s *service) Record(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.StockEvent, error) {
	if input.ProductID == uuid.Nil || input.SizeID == uuid.Nil {
		return nil, fmt.Errorf("product and size ids are required")
	}
	if !input.EventType.IsValid() {
		return nil, fmt.Errorf("invalid stock event type %q", input.EventType)
	}
	if input.Quantity < 0 {
		return nil, fmt.Errorf("event quantity must be non-negative")
	}

	occurred := input.OccurredAt
	if occurred.IsZero() {
		occurred = s.now()
	}

	event := &models.StockEvent{
		ID:            uuid.New(),
		ProductID:     input.ProductID,
		SizeID:        input.SizeID,
		EventType:     input.EventType,
		Quantity:      input.Quantity,
		UserID:        input.UserID,
		ReservationID: input.ReservationID,
		CreatedAt:     occurred.UTC(),
	}
	if err := s.repo.WithTx(tx).Append(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

func (s *service) List(ctx context.Context, input ListInput) (*EventList, error) {
	cursor, err := pagination.ParseCursor(input.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(input.Limit)

	rows, err := s.repo.List(ctx, ListFilter{
		ProductID:     input.ProductID,
		SizeID:        input.SizeID,
		ReservationID: input.ReservationID,
	}, cursor, pagination.FetchSize(limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list stock events")
	}

	rows, next := pagination.Page(rows, limit, func(e models.StockEvent) pagination.Cursor {
		return pagination.Cursor{CreatedAt: e.CreatedAt, ID: e.ID}
	})
	list := &EventList{Events: make([]EventView, 0, len(rows)), NextCursor: next}
	for _, row := range rows {
		list.Events = append(list.Events, EventView{
			ID:            row.ID,
			ProductID:     row.ProductID,
			SizeID:        row.SizeID,
			EventType:     row.EventType,
			Quantity:      row.Quantity,
			UserID:        row.UserID,
			ReservationID: row.ReservationID,
			CreatedAt:     row.CreatedAt,
		})
	}
	return list, nil
}
