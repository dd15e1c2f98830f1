package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/subtrack/billing-engine/internal/repository"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_subscriptions",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.SubscriptionModel{}); err != nil {
					return err
				}
				indexes := []string{
					`CREATE INDEX IF NOT EXISTS idx_subscriptions_user_id ON subscriptions (user_id)`,
					`CREATE INDEX IF NOT EXISTS idx_subscriptions_end_date ON subscriptions (end_date) WHERE end_date IS NOT NULL`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.SubscriptionModel{})
			},
		},
		createPaymentsTable(),
		createNotificationPreferencesTable(),
		createReminderDeliveryStatesTable(),
	})

	return m.Migrate()
}
