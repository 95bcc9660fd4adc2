package stock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/stockmonitor/pkg/db/models"
	"github.com/angelmondragon/stockmonitor/pkg/enums"
)

// VariantKey identifies one sellable (product, size) pair.
type VariantKey struct {
	ProductID uuid.UUID
	SizeID    uuid.UUID
}

// ReservationRepository persists time-boxed holds.
type ReservationRepository interface {
	WithTx(tx *gorm.DB) ReservationRepository
	Create(ctx context.Context, reservation *models.StockReservation) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.StockReservation, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.StockReservation, error)
	SumActive(ctx context.Context, productID, sizeID uuid.UUID, now time.Time) (int, error)
	SumActiveByVariant(ctx context.Context, filter RecordFilter, now time.Time) (map[VariantKey]int, error)
	Transition(ctx context.Context, id uuid.UUID, from, to enums.ReservationStatus, now time.Time) (bool, error)
	ExpireStale(ctx context.Context, now time.Time, limit int) (int64, error)
}

type reservationRepository struct {
	db *gorm.DB
}

// NewReservationRepository returns a reservation repository bound to the provided database.
func NewReservationRepository(db *gorm.DB) ReservationRepository {
	return &reservationRepository{db: db}
}

func (r *reservationRepository) WithTx(tx *gorm.DB) ReservationRepository {
	if tx == nil {
		return r
	}
	return &reservationRepository{db: tx}
}

func (r *reservationRepository) Create(ctx context.Context, reservation *models.StockReservation) error {
	return r.db.WithContext(ctx).Create(reservation).Error
}

func (r *reservationRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.StockReservation, error) {
	var reservation models.StockReservation
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&reservation).Error; err != nil {
		return nil, err
	}
	return &reservation, nil
}

func (r *reservationRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.StockReservation, error) {
	var reservation models.StockReservation
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&reservation).Error; err != nil {
		return nil, err
	}
	return &reservation, nil
}

// SumActive totals the units held by active reservations that have not yet
// expired at now. Stale rows the sweeper has not reached are excluded here.
func (r *reservationRepository) SumActive(ctx context.Context, productID, sizeID uuid.UUID, now time.Time) (int, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.StockReservation{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("product_id = ? AND size_id = ?", productID, sizeID).
		Where("status = ? AND expires_at > ?", enums.ReservationStatusActive, now).
		Scan(&total).Error; err != nil {
		return 0, err
	}
	return int(total), nil
}

func (r *reservationRepository) SumActiveByVariant(ctx context.Context, filter RecordFilter, now time.Time) (map[VariantKey]int, error) {
	query := r.db.WithContext(ctx).
		Model(&models.StockReservation{}).
		Select("product_id, size_id, COALESCE(SUM(quantity), 0) AS total").
		Where("status = ? AND expires_at > ?", enums.ReservationStatusActive, now)
	if filter.ProductID != nil {
		query = query.Where("product_id = ?", *filter.ProductID)
	}
	if filter.SizeID != nil {
		query = query.Where("size_id = ?", *filter.SizeID)
	}

	var rows []struct {
		ProductID uuid.UUID
		SizeID    uuid.UUID
		Total     int64
	}
	if err := query.Group("product_id, size_id").Scan(&rows).Error; err != nil {
		return nil, err
	}

	totals := make(map[VariantKey]int, len(rows))
	for _, row := range rows {
		totals[VariantKey{ProductID: row.ProductID, SizeID: row.SizeID}] = int(row.Total)
	}
	return totals, nil
}

// Transition moves a reservation from one status to another only if it is
// still in the expected status, and reports whether the write applied.
func (r *reservationRepository) Transition(ctx context.Context, id uuid.UUID, from, to enums.ReservationStatus, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.StockReservation{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{
			"status":     to,
			"updated_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ExpireStale flips up to limit active reservations whose expiry has passed.
func (r *reservationRepository) ExpireStale(ctx context.Context, now time.Time, limit int) (int64, error) {
	stale := r.db.
		Model(&models.StockReservation{}).
		Select("id").
		Where("status = ? AND expires_at <= ?", enums.ReservationStatusActive, now).
		Order("expires_at ASC").
		Limit(limit)

	res := r.db.WithContext(ctx).
		Model(&models.StockReservation{}).
		Where("id IN (?)", stale).
		Where("status = ?", enums.ReservationStatusActive).
		Updates(map[string]any{
			"status":     enums.ReservationStatusExpired,
			"updated_at": now,
		})
	return res.RowsAffected, res.Error
}
