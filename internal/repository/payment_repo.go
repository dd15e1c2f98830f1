package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/subtrack/billing-engine/internal/domain"
)

type PaymentRepository interface {
	Create(ctx context.Context, p *domain.Payment) error
	// CountBySubscription returns the number of logged payments, the
	// "elapsed billing periods" signal for the cycle calculator.
	CountBySubscription(ctx context.Context, subscriptionID string) (int, error)
	CountForSubscriptions(ctx context.Context, subscriptionIDs []string) (map[string]int, error)
	ListBySubscription(ctx context.Context, subscriptionID string) ([]domain.Payment, error)
	// DeleteLatest removes the most recent payment only; older records
	// are immutable history.
	DeleteLatest(ctx context.Context, subscriptionID string) error
}

type paymentCountRow struct {
	SubscriptionID string `gorm:"column:subscription_id"`
	Count          int    `gorm:"column:count"`
}

type GormPaymentRepo struct {
	db *gorm.DB
}

func NewGormPaymentRepo(db *gorm.DB) *GormPaymentRepo {
	return &GormPaymentRepo{db: db}
}

func (r *GormPaymentRepo) Create(ctx context.Context, p *domain.Payment) error {
	model := paymentModelFromDomain(p)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if p != nil {
		*p = *paymentModelToDomain(model)
	}
	return nil
}

func (r *GormPaymentRepo) CountBySubscription(ctx context.Context, subscriptionID string) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&PaymentModel{}).
		Where("subscription_id = ?", subscriptionID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (r *GormPaymentRepo) CountForSubscriptions(ctx context.Context, subscriptionIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(subscriptionIDs))
	if len(subscriptionIDs) == 0 {
		return counts, nil
	}

	var rows []paymentCountRow
	err := r.db.WithContext(ctx).
		Model(&PaymentModel{}).
		Select("subscription_id, COUNT(*) as count").
		Where("subscription_id IN ?", subscriptionIDs).
		Group("subscription_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		counts[row.SubscriptionID] = row.Count
	}

	return counts, nil
}

func (r *GormPaymentRepo) ListBySubscription(ctx context.Context, subscriptionID string) ([]domain.Payment, error) {
	var models []PaymentModel
	err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("payment_date DESC, created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	payments := make([]domain.Payment, 0, len(models))
	for i := range models {
		payments = append(payments, *paymentModelToDomain(&models[i]))
	}

	return payments, nil
}

func (r *GormPaymentRepo) DeleteLatest(ctx context.Context, subscriptionID string) error {
	var model PaymentModel
	err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("payment_date DESC, created_at DESC").
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).Delete(&PaymentModel{}, "id = ?", model.ID).Error
}
