package migrate

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/stockmonitor/pkg/db/models"
)

// Models lists every persisted model in dependency order.
func Models() []any {
	return []any{
		&models.StockRecord{},
		&models.StockReservation{},
		&models.AlertConfig{},
		&models.StockAlert{},
		&models.StockEvent{},
		&models.OutboxEvent{},
		&models.OutboxDLQ{},
	}
}

// AutoMigrateModels builds the schema from the gorm models. It backs the
// sqlite driver used for local runs and tests, where the postgres SQL files
// cannot be applied.
func AutoMigrateModels(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db is required")
	}
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
