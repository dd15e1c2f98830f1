package service

import (
	"context"
	"time"

	"github.com/subtrack/billing-engine/internal/domain"
	"github.com/subtrack/billing-engine/internal/notifier"
)

type fakeSubscriptionRepo struct {
	createFn       func(ctx context.Context, s *domain.Subscription) error
	getByIDFn      func(ctx context.Context, id string) (*domain.Subscription, error)
	listFn         func(ctx context.Context, userID string, page, pageSize int) ([]domain.Subscription, int64, error)
	listNotEndedFn func(ctx context.Context, now time.Time, limit, offset int) ([]domain.Subscription, error)
	setEndDateFn   func(ctx context.Context, id string, endDate time.Time) error
}

func (f *fakeSubscriptionRepo) Create(ctx context.Context, s *domain.Subscription) error {
	if f.createFn == nil {
		return nil
	}
	return f.createFn(ctx, s)
}

func (f *fakeSubscriptionRepo) GetByID(ctx context.Context, id string) (*domain.Subscription, error) {
	if f.getByIDFn == nil {
		return nil, domain.ErrNotFound
	}
	return f.getByIDFn(ctx, id)
}

func (f *fakeSubscriptionRepo) List(ctx context.Context, userID string, page, pageSize int) ([]domain.Subscription, int64, error) {
	if f.listFn == nil {
		return nil, 0, nil
	}
	return f.listFn(ctx, userID, page, pageSize)
}

func (f *fakeSubscriptionRepo) ListNotEnded(ctx context.Context, now time.Time, limit, offset int) ([]domain.Subscription, error) {
	if f.listNotEndedFn == nil {
		return nil, nil
	}
	return f.listNotEndedFn(ctx, now, limit, offset)
}

func (f *fakeSubscriptionRepo) SetEndDate(ctx context.Context, id string, endDate time.Time) error {
	if f.setEndDateFn == nil {
		return nil
	}
	return f.setEndDateFn(ctx, id, endDate)
}

type fakePaymentRepo struct {
	createFn                func(ctx context.Context, p *domain.Payment) error
	countBySubscriptionFn   func(ctx context.Context, subscriptionID string) (int, error)
	countForSubscriptionsFn func(ctx context.Context, subscriptionIDs []string) (map[string]int, error)
	listBySubscriptionFn    func(ctx context.Context, subscriptionID string) ([]domain.Payment, error)
	deleteLatestFn          func(ctx context.Context, subscriptionID string) error
}

func (f *fakePaymentRepo) Create(ctx context.Context, p *domain.Payment) error {
	if f.createFn == nil {
		return nil
	}
	return f.createFn(ctx, p)
}

func (f *fakePaymentRepo) CountBySubscription(ctx context.Context, subscriptionID string) (int, error) {
	if f.countBySubscriptionFn == nil {
		return 0, nil
	}
	return f.countBySubscriptionFn(ctx, subscriptionID)
}

func (f *fakePaymentRepo) CountForSubscriptions(ctx context.Context, subscriptionIDs []string) (map[string]int, error) {
	if f.countForSubscriptionsFn == nil {
		return map[string]int{}, nil
	}
	return f.countForSubscriptionsFn(ctx, subscriptionIDs)
}

func (f *fakePaymentRepo) ListBySubscription(ctx context.Context, subscriptionID string) ([]domain.Payment, error) {
	if f.listBySubscriptionFn == nil {
		return nil, nil
	}
	return f.listBySubscriptionFn(ctx, subscriptionID)
}

func (f *fakePaymentRepo) DeleteLatest(ctx context.Context, subscriptionID string) error {
	if f.deleteLatestFn == nil {
		return nil
	}
	return f.deleteLatestFn(ctx, subscriptionID)
}

type fakePreferencesRepo struct {
	getByUserIDFn func(ctx context.Context, userID string) (*domain.NotificationPreferences, error)
	getForUsersFn func(ctx context.Context, userIDs []string) (map[string]domain.NotificationPreferences, error)
	upsertFn      func(ctx context.Context, p *domain.NotificationPreferences) error
}

func (f *fakePreferencesRepo) GetByUserID(ctx context.Context, userID string) (*domain.NotificationPreferences, error) {
	if f.getByUserIDFn == nil {
		return nil, domain.ErrNotFound
	}
	return f.getByUserIDFn(ctx, userID)
}

func (f *fakePreferencesRepo) GetForUsers(ctx context.Context, userIDs []string) (map[string]domain.NotificationPreferences, error) {
	if f.getForUsersFn == nil {
		return map[string]domain.NotificationPreferences{}, nil
	}
	return f.getForUsersFn(ctx, userIDs)
}

func (f *fakePreferencesRepo) Upsert(ctx context.Context, p *domain.NotificationPreferences) error {
	if f.upsertFn == nil {
		return nil
	}
	return f.upsertFn(ctx, p)
}

type fakeDeliveryStateRepo struct {
	getByKeyFn       func(ctx context.Context, subscriptionID string, intervalDays int, dueDate time.Time) (*domain.DeliveryState, error)
	upsertFn         func(ctx context.Context, state *domain.DeliveryState) error
	updateStatusFn   func(ctx context.Context, id string, status domain.DeliveryStatus) error
	getDueForRetryFn func(ctx context.Context, now time.Time, maxAttempts, limit int) ([]domain.DeliveryState, error)
	purgeOlderThanFn func(ctx context.Context, cutoff time.Time) (int64, error)
}

func (f *fakeDeliveryStateRepo) GetByKey(ctx context.Context, subscriptionID string, intervalDays int, dueDate time.Time) (*domain.DeliveryState, error) {
	if f.getByKeyFn == nil {
		return nil, domain.ErrNotFound
	}
	return f.getByKeyFn(ctx, subscriptionID, intervalDays, dueDate)
}

func (f *fakeDeliveryStateRepo) Upsert(ctx context.Context, state *domain.DeliveryState) error {
	if f.upsertFn == nil {
		return nil
	}
	return f.upsertFn(ctx, state)
}

func (f *fakeDeliveryStateRepo) UpdateStatus(ctx context.Context, id string, status domain.DeliveryStatus) error {
	if f.updateStatusFn == nil {
		return nil
	}
	return f.updateStatusFn(ctx, id, status)
}

func (f *fakeDeliveryStateRepo) GetDueForRetry(ctx context.Context, now time.Time, maxAttempts, limit int) ([]domain.DeliveryState, error) {
	if f.getDueForRetryFn == nil {
		return nil, nil
	}
	return f.getDueForRetryFn(ctx, now, maxAttempts, limit)
}

func (f *fakeDeliveryStateRepo) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if f.purgeOlderThanFn == nil {
		return 0, nil
	}
	return f.purgeOlderThanFn(ctx, cutoff)
}

type fakeDeduplicator struct {
	shouldSendFn func(ctx context.Context, subscriptionID string, intervalDays int, dueDate time.Time) (bool, error)
	recordSentFn func(ctx context.Context, subscriptionID string, intervalDays int, dueDate time.Time) error
}

func (f *fakeDeduplicator) ShouldSend(ctx context.Context, subscriptionID string, intervalDays int, dueDate time.Time) (bool, error) {
	if f.shouldSendFn == nil {
		return true, nil
	}
	return f.shouldSendFn(ctx, subscriptionID, intervalDays, dueDate)
}

func (f *fakeDeduplicator) RecordSent(ctx context.Context, subscriptionID string, intervalDays int, dueDate time.Time) error {
	if f.recordSentFn == nil {
		return nil
	}
	return f.recordSentFn(ctx, subscriptionID, intervalDays, dueDate)
}

type fakeLease struct {
	acquireFn func(ctx context.Context, job string) (string, bool, error)
	releaseFn func(ctx context.Context, job, token string) error
}

func (f *fakeLease) Acquire(ctx context.Context, job string) (string, bool, error) {
	if f.acquireFn == nil {
		return "token", true, nil
	}
	return f.acquireFn(ctx, job)
}

func (f *fakeLease) Release(ctx context.Context, job, token string) error {
	if f.releaseFn == nil {
		return nil
	}
	return f.releaseFn(ctx, job, token)
}

type fakeNotifier struct {
	sendFn func(ctx context.Context, msg notifier.Message) (*notifier.SendResponse, error)
}

func (f *fakeNotifier) Send(ctx context.Context, msg notifier.Message) (*notifier.SendResponse, error) {
	if f.sendFn == nil {
		return &notifier.SendResponse{StatusCode: 202}, nil
	}
	return f.sendFn(ctx, msg)
}

type fakeRateLimiter struct {
	allowFn func(ctx context.Context, channel string) (bool, error)
	waitFn  func(ctx context.Context, channel string) error
}

func (f *fakeRateLimiter) Allow(ctx context.Context, channel string) (bool, error) {
	if f.allowFn == nil {
		return true, nil
	}
	return f.allowFn(ctx, channel)
}

func (f *fakeRateLimiter) Wait(ctx context.Context, channel string) error {
	if f.waitFn == nil {
		return nil
	}
	return f.waitFn(ctx, channel)
}
