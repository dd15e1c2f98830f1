package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/subtrack/billing-engine/internal/repository"
)

func createPaymentsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_payments",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.PaymentModel{}); err != nil {
				return err
			}
			// The dispatcher counts payments per subscription on every
			// scan; the ordering matches the latest-payment delete path.
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_payments_subscription_date ON payments (subscription_id, payment_date DESC, created_at DESC)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.PaymentModel{})
		},
	}
}
