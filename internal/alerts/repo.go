package alerts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/stockmonitor/pkg/db/models"
	"github.com/angelmondragon/stockmonitor/pkg/enums"
)

// Candidate is a stock record that may need an alert, with the product's
// threshold overrides when it has any.
type Candidate struct {
	Record models.StockRecord
	Config *models.AlertConfig
}

// Repository persists alerts and per-product alert configuration.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindConfig(ctx context.Context, productID uuid.UUID) (*models.AlertConfig, error)
	UpsertConfig(ctx context.Context, cfg *models.AlertConfig) error
	ListCandidates(ctx context.Context, override *int, defaultLow int) ([]Candidate, error)
	LockVariant(ctx context.Context, productID, sizeID uuid.UUID) (*models.StockRecord, error)
	FindOpen(ctx context.Context, productID, sizeID uuid.UUID, alertType enums.StockAlertType) (*models.StockAlert, error)
	Create(ctx context.Context, alert *models.StockAlert) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.StockAlert, error)
	Acknowledge(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	AcknowledgeOpen(ctx context.Context, productID, sizeID uuid.UUID, keep *enums.StockAlertType, now time.Time) (int64, error)
	ListOpen(ctx context.Context, limit int) ([]models.StockAlert, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an alert repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindConfig returns nil without error when the product has no overrides.
func (r *repository) FindConfig(ctx context.Context, productID uuid.UUID) (*models.AlertConfig, error) {
	var cfg models.AlertConfig
	err := r.db.WithContext(ctx).Where("product_id = ?", productID).First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cfg, nil
}

func (r *repository) UpsertConfig(ctx context.Context, cfg *models.AlertConfig) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "product_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"low_stock_threshold", "critical_threshold", "updated_at"}),
		}).
		Create(cfg).Error
}

// ListCandidates selects records at or below the override, or at or below the
// product's own low threshold (falling back to defaultLow) when no override is given.
func (r *repository) ListCandidates(ctx context.Context, override *int, defaultLow int) ([]Candidate, error) {
	var rows []struct {
		ProductID         uuid.UUID
		SizeID            uuid.UUID
		Quantity          int
		CreatedAt         time.Time
		UpdatedAt         time.Time
		HasConfig         bool
		LowStockThreshold int
		CriticalThreshold int
	}

	query := r.db.WithContext(ctx).
		Table("stock_records AS r").
		Select(`r.product_id, r.size_id, r.quantity, r.created_at, r.updated_at,
			c.product_id IS NOT NULL AS has_config,
			COALESCE(c.low_stock_threshold, 0) AS low_stock_threshold,
			COALESCE(c.critical_threshold, 0) AS critical_threshold`).
		Joins("LEFT JOIN product_alert_configs AS c ON c.product_id = r.product_id")
	if override != nil {
		query = query.Where("r.quantity <= ?", *override)
	} else {
		query = query.Where("r.quantity <= COALESCE(c.low_stock_threshold, ?)", defaultLow)
	}
	if err := query.Order("r.product_id ASC").Order("r.size_id ASC").Scan(&rows).Error; err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(rows))
	for _, row := range rows {
		candidate := Candidate{Record: models.StockRecord{
			ProductID: row.ProductID,
			SizeID:    row.SizeID,
			Quantity:  row.Quantity,
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		}}
		if row.HasConfig {
			candidate.Config = &models.AlertConfig{
				ProductID:         row.ProductID,
				LowStockThreshold: row.LowStockThreshold,
				CriticalThreshold: row.CriticalThreshold,
			}
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

// LockVariant takes the stock row lock and returns the current record.
func (r *repository) LockVariant(ctx context.Context, productID, sizeID uuid.UUID) (*models.StockRecord, error) {
	var record models.StockRecord
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id = ? AND size_id = ?", productID, sizeID).
		First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) FindOpen(ctx context.Context, productID, sizeID uuid.UUID, alertType enums.StockAlertType) (*models.StockAlert, error) {
	var alert models.StockAlert
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND size_id = ? AND alert_type = ? AND status = ?", productID, sizeID, alertType, enums.StockAlertStatusActive).
		Order("created_at DESC").
		First(&alert).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &alert, nil
}

func (r *repository) Create(ctx context.Context, alert *models.StockAlert) error {
	return r.db.WithContext(ctx).Create(alert).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.StockAlert, error) {
	var alert models.StockAlert
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&alert).Error; err != nil {
		return nil, err
	}
	return &alert, nil
}

func (r *repository) Acknowledge(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.StockAlert{}).
		Where("id = ? AND status = ?", id, enums.StockAlertStatusActive).
		Updates(map[string]any{
			"status":          enums.StockAlertStatusAcknowledged,
			"acknowledged_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// AcknowledgeOpen closes a variant's open alerts, optionally keeping one type open.
func (r *repository) AcknowledgeOpen(ctx context.Context, productID, sizeID uuid.UUID, keep *enums.StockAlertType, now time.Time) (int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.StockAlert{}).
		Where("product_id = ? AND size_id = ? AND status = ?", productID, sizeID, enums.StockAlertStatusActive)
	if keep != nil {
		query = query.Where("alert_type <> ?", *keep)
	}
	res := query.Updates(map[string]any{
		"status":          enums.StockAlertStatusAcknowledged,
		"acknowledged_at": now,
	})
	return res.RowsAffected, res.Error
}

func (r *repository) ListOpen(ctx context.Context, limit int) ([]models.StockAlert, error) {
	var alerts []models.StockAlert
	if err := r.db.WithContext(ctx).
		Where("status = ?", enums.StockAlertStatusActive).
		Order("created_at DESC").
		Limit(limit).
		Find(&alerts).Error; err != nil {
		return nil, err
	}
	return alerts, nil
}
