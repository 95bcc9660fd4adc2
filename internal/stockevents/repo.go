package stockevents

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockmonitor/pkg/db/models"
	"github.com/angelmondragon/stockmonitor/pkg/pagination"
)

// ListFilter narrows an event listing. Nil fields match everything.
type ListFilter struct {
	ProductID     *uuid.UUID
	SizeID        *uuid.UUID
	ReservationID *uuid.UUID
}

// Repository persists the append-only stock event log. There is deliberately
// no update or delete method.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Append(ctx context.Context, event *models.StockEvent) error
	List(ctx context.Context, filter ListFilter, cursor *pagination.Cursor, limit int) ([]models.StockEvent, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an event repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Append(ctx context.Context, event *models.StockEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// List returns events newest first, starting strictly after cursor.
func (r *repository) List(ctx context.Context, filter ListFilter, cursor *pagination.Cursor, limit int) ([]models.StockEvent, error) {
	query := r.db.WithContext(ctx).Model(&models.StockEvent{})
	if filter.ProductID != nil {
		query = query.Where("product_id = ?", *filter.ProductID)
	}
	if filter.SizeID != nil {
		query = query.Where("size_id = ?", *filter.SizeID)
	}
	if filter.ReservationID != nil {
		query = query.Where("reservation_id = ?", *filter.ReservationID)
	}
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var events []models.StockEvent
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
