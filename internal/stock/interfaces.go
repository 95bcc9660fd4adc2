package stock

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/stockmonitor/internal/stockevents"
	"github.com/angelmondragon/stockmonitor/pkg/db/models"
	"github.com/angelmondragon/stockmonitor/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// EventRecorder appends to the stock event log inside the caller's transaction.
type EventRecorder interface {
	Record(ctx context.Context, tx *gorm.DB, input stockevents.RecordInput) (*models.StockEvent, error)
}

// AlertEvaluator runs the alert engine for a single variant after its
// quantity changed.
type AlertEvaluator interface {
	EvaluateVariant(ctx context.Context, tx *gorm.DB, record models.StockRecord) ([]models.StockAlert, error)
}
