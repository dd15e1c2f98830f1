package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/subtrack/billing-engine/internal/repository"
)

func createNotificationPreferencesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_notification_preferences",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&repository.PreferencesModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.PreferencesModel{})
		},
	}
}
