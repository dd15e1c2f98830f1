package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/subtrack/billing-engine/internal/billing"
	"github.com/subtrack/billing-engine/internal/domain"
	"github.com/subtrack/billing-engine/internal/reminder"
	"github.com/subtrack/billing-engine/internal/repository"
)

// SubscriptionService owns the read and write entry points of the engine:
// subscription and payment records in, derived status and settings out.
type SubscriptionService struct {
	subscriptions repository.SubscriptionRepository
	payments      repository.PaymentRepository
	preferences   repository.PreferencesRepository
	logger        *zap.Logger
	now           func() time.Time
}

// StatusView is the derived state returned for one subscription. Nothing in
// it is stored; it is recomputed on every read.
type StatusView struct {
	SubscriptionID  string
	Status          billing.Status
	Overdue         bool
	NextBillingDate *time.Time
	PaymentCount    int
}

func NewSubscriptionService(
	subscriptions repository.SubscriptionRepository,
	payments repository.PaymentRepository,
	preferences repository.PreferencesRepository,
	logger *zap.Logger,
) (*SubscriptionService, error) {
	if subscriptions == nil {
		return nil, fmt.Errorf("subscription repository is required")
	}
	if payments == nil {
		return nil, fmt.Errorf("payment repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SubscriptionService{
		subscriptions: subscriptions,
		payments:      payments,
		preferences:   preferences,
		logger:        logger,
		now:           time.Now,
	}, nil
}

func (s *SubscriptionService) Create(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if sub == nil {
		return nil, fmt.Errorf("%w: subscription is required", domain.ErrValidation)
	}

	sub.ID = strings.TrimSpace(sub.ID)
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	sub.Name = strings.TrimSpace(sub.Name)
	sub.Currency = strings.ToUpper(strings.TrimSpace(sub.Currency))

	sub.StartDate = billing.DateOnly(sub.StartDate)
	if sub.FirstBillingDate.IsZero() {
		sub.FirstBillingDate = sub.StartDate
	}
	sub.FirstBillingDate = billing.DateOnly(sub.FirstBillingDate)
	// The anchor day is fixed at creation from the start date and never
	// recomputed, so a clamped February payment cannot drift the cycle.
	if sub.BillingCycleDay == 0 {
		sub.BillingCycleDay = sub.StartDate.Day()
	}
	if sub.EndDate != nil {
		endDate := billing.DateOnly(*sub.EndDate)
		sub.EndDate = &endDate
	}
	if sub.BillingInterval == 0 {
		sub.BillingInterval = 1
	}

	if err := sub.Validate(); err != nil {
		return nil, err
	}

	if err := s.subscriptions.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}

	return sub, nil
}

func (s *SubscriptionService) GetByID(ctx context.Context, id string) (*domain.Subscription, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: subscription id is required", domain.ErrValidation)
	}
	return s.subscriptions.GetByID(ctx, strings.TrimSpace(id))
}

func (s *SubscriptionService) List(ctx context.Context, userID string, page, pageSize int) ([]domain.Subscription, int64, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, 0, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	return s.subscriptions.List(ctx, strings.TrimSpace(userID), page, pageSize)
}

func (s *SubscriptionService) End(ctx context.Context, id string, endDate time.Time) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: subscription id is required", domain.ErrValidation)
	}
	if endDate.IsZero() {
		return fmt.Errorf("%w: end date is required", domain.ErrValidation)
	}

	sub, err := s.subscriptions.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return err
	}
	endDate = billing.DateOnly(endDate)
	if endDate.Before(sub.StartDate) {
		return fmt.Errorf("%w: end date must not precede start date", domain.ErrValidation)
	}

	return s.subscriptions.SetEndDate(ctx, sub.ID, endDate)
}

// GetStatus computes the derived lifecycle state for one subscription.
//
// Billing math never fails, but the payment lookup can. A read endpoint
// should not go dark because one count query timed out, so the resolver
// degrades to a plain active view with no due date and logs the failure.
func (s *SubscriptionService) GetStatus(ctx context.Context, id string) (*StatusView, error) {
	sub, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()

	count, err := s.payments.CountBySubscription(ctx, sub.ID)
	if err != nil {
		s.logger.Error("payment count lookup failed, degrading status to active",
			zap.String("subscriptionId", sub.ID),
			zap.Error(err),
		)
		resolution := billing.ResolveStatus(sub, nil, now)
		return &StatusView{
			SubscriptionID: sub.ID,
			Status:         resolution.Status,
			Overdue:        resolution.Overdue,
		}, nil
	}

	next := billing.NextBillingDateFor(sub, count)
	resolution := billing.ResolveStatus(sub, next, now)

	return &StatusView{
		SubscriptionID:  sub.ID,
		Status:          resolution.Status,
		Overdue:         resolution.Overdue,
		NextBillingDate: resolution.NextBillingDate,
		PaymentCount:    count,
	}, nil
}

// GetNotificationSettings resolves the configuration that the dispatcher
// would apply to the subscription right now.
func (s *SubscriptionService) GetNotificationSettings(ctx context.Context, id string) (*domain.NotificationSettings, error) {
	sub, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var prefs *domain.NotificationPreferences
	if s.preferences != nil {
		p, err := s.preferences.GetByUserID(ctx, sub.UserID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("failed to load preferences: %w", err)
		}
		prefs = p
	}

	settings := reminder.EffectiveSettings(sub, prefs)
	return &settings, nil
}

// LogPayment records a charge against a subscription. Each logged payment
// advances the computed next billing date by one period.
func (s *SubscriptionService) LogPayment(ctx context.Context, payment *domain.Payment) (*domain.Payment, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if payment == nil {
		return nil, fmt.Errorf("%w: payment is required", domain.ErrValidation)
	}

	payment.ID = strings.TrimSpace(payment.ID)
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	payment.Currency = strings.ToUpper(strings.TrimSpace(payment.Currency))
	payment.PaymentDate = billing.DateOnly(payment.PaymentDate)

	if err := payment.Validate(s.now().UTC()); err != nil {
		return nil, err
	}

	sub, err := s.subscriptions.GetByID(ctx, payment.SubscriptionID)
	if err != nil {
		return nil, err
	}

	if sub.BillingCycle == domain.CycleOneTime {
		count, err := s.payments.CountBySubscription(ctx, sub.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count payments: %w", err)
		}
		if count >= 1 {
			return nil, fmt.Errorf("%w: one-time subscription already has a payment", domain.ErrConflict)
		}
	}

	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	return payment, nil
}

func (s *SubscriptionService) ListPayments(ctx context.Context, subscriptionID string) ([]domain.Payment, error) {
	if strings.TrimSpace(subscriptionID) == "" {
		return nil, fmt.Errorf("%w: subscription id is required", domain.ErrValidation)
	}
	if _, err := s.subscriptions.GetByID(ctx, strings.TrimSpace(subscriptionID)); err != nil {
		return nil, err
	}
	return s.payments.ListBySubscription(ctx, strings.TrimSpace(subscriptionID))
}

// DeleteLatestPayment undoes the most recent logged payment, rolling the
// computed next billing date back one period.
func (s *SubscriptionService) DeleteLatestPayment(ctx context.Context, subscriptionID string) error {
	if strings.TrimSpace(subscriptionID) == "" {
		return fmt.Errorf("%w: subscription id is required", domain.ErrValidation)
	}
	if _, err := s.subscriptions.GetByID(ctx, strings.TrimSpace(subscriptionID)); err != nil {
		return err
	}
	return s.payments.DeleteLatest(ctx, strings.TrimSpace(subscriptionID))
}

// GetPreferences returns the stored user defaults, or the system defaults
// for a user who never saved any.
func (s *SubscriptionService) GetPreferences(ctx context.Context, userID string) (*domain.NotificationPreferences, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	if s.preferences == nil {
		return nil, fmt.Errorf("preferences repository is not configured")
	}

	prefs, err := s.preferences.GetByUserID(ctx, strings.TrimSpace(userID))
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.NotificationPreferences{
			UserID:               strings.TrimSpace(userID),
			NotificationsEnabled: true,
			EmailEnabled:         true,
			ReminderIntervals:    append([]int(nil), domain.DefaultReminderIntervals...),
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return prefs, nil
}

func (s *SubscriptionService) SavePreferences(ctx context.Context, prefs *domain.NotificationPreferences) (*domain.NotificationPreferences, error) {
	if prefs == nil {
		return nil, fmt.Errorf("%w: preferences are required", domain.ErrValidation)
	}
	if s.preferences == nil {
		return nil, fmt.Errorf("preferences repository is not configured")
	}
	prefs.UserID = strings.TrimSpace(prefs.UserID)
	if err := prefs.Validate(); err != nil {
		return nil, err
	}
	if err := s.preferences.Upsert(ctx, prefs); err != nil {
		return nil, fmt.Errorf("failed to save preferences: %w", err)
	}
	return prefs, nil
}
