package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/subtrack/billing-engine/internal/domain"
)

type SubscriptionRepository interface {
	Create(ctx context.Context, s *domain.Subscription) error
	GetByID(ctx context.Context, id string) (*domain.Subscription, error)
	List(ctx context.Context, userID string, page, pageSize int) ([]domain.Subscription, int64, error)
	// ListNotEnded returns subscriptions that are not terminal at the
	// given instant, for the dispatcher scan.
	ListNotEnded(ctx context.Context, now time.Time, limit, offset int) ([]domain.Subscription, error)
	SetEndDate(ctx context.Context, id string, endDate time.Time) error
}

type GormSubscriptionRepo struct {
	db *gorm.DB
}

func NewGormSubscriptionRepo(db *gorm.DB) *GormSubscriptionRepo {
	return &GormSubscriptionRepo{db: db}
}

func (r *GormSubscriptionRepo) Create(ctx context.Context, s *domain.Subscription) error {
	model := subscriptionModelFromDomain(s)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if s != nil {
		*s = *subscriptionModelToDomain(model)
	}
	return nil
}

func (r *GormSubscriptionRepo) GetByID(ctx context.Context, id string) (*domain.Subscription, error) {
	var model SubscriptionModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return subscriptionModelToDomain(&model), nil
}

func (r *GormSubscriptionRepo) List(ctx context.Context, userID string, page, pageSize int) ([]domain.Subscription, int64, error) {
	query := r.db.WithContext(ctx).Model(&SubscriptionModel{}).Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page = max(page, 1)
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []SubscriptionModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	subscriptions := make([]domain.Subscription, 0, len(models))
	for i := range models {
		subscriptions = append(subscriptions, *subscriptionModelToDomain(&models[i]))
	}

	return subscriptions, total, nil
}

func (r *GormSubscriptionRepo) ListNotEnded(ctx context.Context, now time.Time, limit, offset int) ([]domain.Subscription, error) {
	var models []SubscriptionModel
	err := r.db.WithContext(ctx).
		Where("end_date IS NULL OR end_date > ?", now).
		Order("created_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	subscriptions := make([]domain.Subscription, 0, len(models))
	for i := range models {
		subscriptions = append(subscriptions, *subscriptionModelToDomain(&models[i]))
	}

	return subscriptions, nil
}

func (r *GormSubscriptionRepo) SetEndDate(ctx context.Context, id string, endDate time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&SubscriptionModel{}).
		Where("id = ?", id).
		Update("end_date", endDate)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
