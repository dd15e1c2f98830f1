package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/subtrack/billing-engine/internal/domain"
)

type PreferencesRepository interface {
	GetByUserID(ctx context.Context, userID string) (*domain.NotificationPreferences, error)
	GetForUsers(ctx context.Context, userIDs []string) (map[string]domain.NotificationPreferences, error)
	Upsert(ctx context.Context, p *domain.NotificationPreferences) error
}

type GormPreferencesRepo struct {
	db *gorm.DB
}

func NewGormPreferencesRepo(db *gorm.DB) *GormPreferencesRepo {
	return &GormPreferencesRepo{db: db}
}

func (r *GormPreferencesRepo) GetByUserID(ctx context.Context, userID string) (*domain.NotificationPreferences, error) {
	var model PreferencesModel
	err := r.db.WithContext(ctx).First(&model, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return preferencesModelToDomain(&model), nil
}

func (r *GormPreferencesRepo) GetForUsers(ctx context.Context, userIDs []string) (map[string]domain.NotificationPreferences, error) {
	prefs := make(map[string]domain.NotificationPreferences, len(userIDs))
	if len(userIDs) == 0 {
		return prefs, nil
	}

	var models []PreferencesModel
	err := r.db.WithContext(ctx).
		Where("user_id IN ?", userIDs).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	for i := range models {
		prefs[models[i].UserID] = *preferencesModelToDomain(&models[i])
	}

	return prefs, nil
}

func (r *GormPreferencesRepo) Upsert(ctx context.Context, p *domain.NotificationPreferences) error {
	model := preferencesModelFromDomain(p)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"notifications_enabled", "email_enabled", "reminder_intervals", "updated_at",
			}),
		}).
		Create(model).Error
	if err != nil {
		return err
	}
	if p != nil {
		*p = *preferencesModelToDomain(model)
	}
	return nil
}
