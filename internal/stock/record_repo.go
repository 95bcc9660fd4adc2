package stock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/stockmonitor/pkg/db/models"
)

// RecordFilter narrows a record listing. Nil fields match everything.
type RecordFilter struct {
	ProductID   *uuid.UUID
	SizeID      *uuid.UUID
	MaxQuantity *int
}

// RecordRepository is the stock ledger: one row per variant.
type RecordRepository interface {
	WithTx(tx *gorm.DB) RecordRepository
	Get(ctx context.Context, productID, sizeID uuid.UUID) (*models.StockRecord, error)
	GetForUpdate(ctx context.Context, productID, sizeID uuid.UUID) (*models.StockRecord, error)
	List(ctx context.Context, filter RecordFilter) ([]models.StockRecord, error)
	Upsert(ctx context.Context, productID, sizeID uuid.UUID, quantity int, now time.Time) (*models.StockRecord, error)
	Decrement(ctx context.Context, productID, sizeID uuid.UUID, quantity int, now time.Time) (bool, error)
}

type recordRepository struct {
	db *gorm.DB
}

// NewRecordRepository returns a ledger repository bound to the provided database.
func NewRecordRepository(db *gorm.DB) RecordRepository {
	return &recordRepository{db: db}
}

func (r *recordRepository) WithTx(tx *gorm.DB) RecordRepository {
	if tx == nil {
		return r
	}
	return &recordRepository{db: tx}
}

func (r *recordRepository) Get(ctx context.Context, productID, sizeID uuid.UUID) (*models.StockRecord, error) {
	var record models.StockRecord
	if err := r.db.WithContext(ctx).
		Where("product_id = ? AND size_id = ?", productID, sizeID).
		First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// GetForUpdate reads the row under SELECT ... FOR UPDATE. Every mutation of a
// variant takes this lock first.
func (r *recordRepository) GetForUpdate(ctx context.Context, productID, sizeID uuid.UUID) (*models.StockRecord, error) {
	var record models.StockRecord
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id = ? AND size_id = ?", productID, sizeID).
		First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *recordRepository) List(ctx context.Context, filter RecordFilter) ([]models.StockRecord, error) {
	query := r.db.WithContext(ctx).Model(&models.StockRecord{})
	if filter.ProductID != nil {
		query = query.Where("product_id = ?", *filter.ProductID)
	}
	if filter.SizeID != nil {
		query = query.Where("size_id = ?", *filter.SizeID)
	}
	if filter.MaxQuantity != nil {
		query = query.Where("quantity <= ?", *filter.MaxQuantity)
	}

	var records []models.StockRecord
	if err := query.
		Order("product_id ASC").
		Order("size_id ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// Upsert sets quantity to an absolute value, creating the variant on first restock.
func (r *recordRepository) Upsert(ctx context.Context, productID, sizeID uuid.UUID, quantity int, now time.Time) (*models.StockRecord, error) {
	record := models.StockRecord{
		ProductID: productID,
		SizeID:    sizeID,
		Quantity:  quantity,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "product_id"}, {Name: "size_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"quantity", "updated_at"}),
		}).
		Create(&record).Error; err != nil {
		return nil, err
	}
	return r.Get(ctx, productID, sizeID)
}

// Decrement subtracts quantity only while the result stays non-negative and
// reports whether the row changed.
func (r *recordRepository) Decrement(ctx context.Context, productID, sizeID uuid.UUID, quantity int, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.StockRecord{}).
		Where("product_id = ? AND size_id = ? AND quantity >= ?", productID, sizeID, quantity).
		Updates(map[string]any{
			"quantity":   gorm.Expr("quantity - ?", quantity),
			"updated_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
