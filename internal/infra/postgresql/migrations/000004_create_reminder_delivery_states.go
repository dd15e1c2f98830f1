package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/subtrack/billing-engine/internal/repository"
)

func createReminderDeliveryStatesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_reminder_delivery_states",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.DeliveryStateModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_delivery_states_retry ON reminder_delivery_states (next_retry_at) WHERE status = 'PENDING_RETRY'`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.DeliveryStateModel{})
		},
	}
}
