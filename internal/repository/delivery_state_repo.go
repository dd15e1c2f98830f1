package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/subtrack/billing-engine/internal/domain"
)

type DeliveryStateRepository interface {
	GetByKey(ctx context.Context, subscriptionID string, intervalDays int, dueDate time.Time) (*domain.DeliveryState, error)
	// Upsert writes the state for its (subscription, interval, due date)
	// key; a concurrent writer for the same key last-writes-wins, which
	// is safe because keys are content-addressed.
	Upsert(ctx context.Context, state *domain.DeliveryState) error
	UpdateStatus(ctx context.Context, id string, status domain.DeliveryStatus) error
	// GetDueForRetry returns pending states whose retry time has come
	// and that still have attempts left.
	GetDueForRetry(ctx context.Context, now time.Time, maxAttempts, limit int) ([]domain.DeliveryState, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type GormDeliveryStateRepo struct {
	db *gorm.DB
}

func NewGormDeliveryStateRepo(db *gorm.DB) *GormDeliveryStateRepo {
	return &GormDeliveryStateRepo{db: db}
}

func (r *GormDeliveryStateRepo) GetByKey(ctx context.Context, subscriptionID string, intervalDays int, dueDate time.Time) (*domain.DeliveryState, error) {
	var model DeliveryStateModel
	err := r.db.WithContext(ctx).
		Where("subscription_id = ? AND interval_days = ? AND due_date = ?", subscriptionID, intervalDays, dueDate).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return deliveryStateModelToDomain(&model), nil
}

func (r *GormDeliveryStateRepo) Upsert(ctx context.Context, state *domain.DeliveryState) error {
	model := deliveryStateModelFromDomain(state)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "subscription_id"}, {Name: "interval_days"}, {Name: "due_date"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"status", "attempt_count", "last_error", "last_attempt_at", "next_retry_at", "updated_at",
			}),
		}).
		Create(model).Error
	if err != nil {
		return err
	}
	if state != nil {
		*state = *deliveryStateModelToDomain(model)
	}
	return nil
}

func (r *GormDeliveryStateRepo) UpdateStatus(ctx context.Context, id string, status domain.DeliveryStatus) error {
	result := r.db.WithContext(ctx).
		Model(&DeliveryStateModel{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormDeliveryStateRepo) GetDueForRetry(ctx context.Context, now time.Time, maxAttempts, limit int) ([]domain.DeliveryState, error) {
	var models []DeliveryStateModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_retry_at <= ? AND attempt_count < ?", domain.DeliveryPendingRetry, now, maxAttempts).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	states := make([]domain.DeliveryState, 0, len(models))
	for i := range models {
		states = append(states, *deliveryStateModelToDomain(&models[i]))
	}

	return states, nil
}

func (r *GormDeliveryStateRepo) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("due_date < ?", cutoff).
		Delete(&DeliveryStateModel{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
