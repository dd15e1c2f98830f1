package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/subtrack/billing-engine/internal/dedup"
	"github.com/subtrack/billing-engine/internal/domain"
	"github.com/subtrack/billing-engine/internal/notifier"
	"github.com/subtrack/billing-engine/internal/observability"
	"github.com/subtrack/billing-engine/internal/ratelimit"
	"github.com/subtrack/billing-engine/internal/reminder"
	"github.com/subtrack/billing-engine/internal/repository"
)

const defaultRecoveryScanLimit = 100

// RecoveryService re-drives reminder deliveries that failed transiently.
// Each pass picks up due pending-retry records, re-validates that the
// reminder is still worth sending, and attempts the send again.
type RecoveryService struct {
	deliveries    repository.DeliveryStateRepository
	subscriptions repository.SubscriptionRepository
	preferences   repository.PreferencesRepository
	deduplicator  dedup.Deduplicator
	sender        notifier.Notifier
	rateLimiter   ratelimit.RateLimiter
	logger        *zap.Logger
	metrics       *observability.Metrics

	maxAttempts int
	limit       int
	now         func() time.Time
	randIntn    func(n int) int
}

func NewRecoveryService(
	deliveries repository.DeliveryStateRepository,
	subscriptions repository.SubscriptionRepository,
	preferences repository.PreferencesRepository,
	deduplicator dedup.Deduplicator,
	sender notifier.Notifier,
	rateLimiter ratelimit.RateLimiter,
	maxAttempts, limit int,
	logger *zap.Logger,
) (*RecoveryService, error) {
	if deliveries == nil {
		return nil, fmt.Errorf("delivery state repository is required")
	}
	if subscriptions == nil {
		return nil, fmt.Errorf("subscription repository is required")
	}
	if deduplicator == nil {
		return nil, fmt.Errorf("deduplicator is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	if maxAttempts < 1 {
		maxAttempts = defaultMaxSendAttempts
	}
	if limit < 1 {
		limit = defaultRecoveryScanLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RecoveryService{
		deliveries:    deliveries,
		subscriptions: subscriptions,
		preferences:   preferences,
		deduplicator:  deduplicator,
		sender:        sender,
		rateLimiter:   rateLimiter,
		logger:        logger,
		maxAttempts:   maxAttempts,
		limit:         limit,
		now:           time.Now,
		randIntn:      rand.Intn,
	}, nil
}

func (s *RecoveryService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Run executes one recovery pass and returns how many deliveries were
// re-sent successfully.
func (s *RecoveryService) Run(ctx context.Context) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	now := s.now().UTC()
	due, err := s.deliveries.GetDueForRetry(ctx, now, s.maxAttempts, s.limit)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch due retries: %w", err)
	}

	recovered := 0
	for i := range due {
		state := due[i]
		if err := ctx.Err(); err != nil {
			return recovered, err
		}

		ok, err := s.retryDelivery(ctx, &state)
		if err != nil {
			s.logger.Error("recovery attempt failed",
				zap.String("deliveryId", state.ID),
				zap.String("subscriptionId", state.SubscriptionID),
				zap.Error(err),
			)
			continue
		}
		if ok {
			recovered++
		}
	}

	return recovered, nil
}

func (s *RecoveryService) retryDelivery(ctx context.Context, state *domain.DeliveryState) (bool, error) {
	now := s.now().UTC()

	sub, err := s.subscriptions.GetByID(ctx, state.SubscriptionID)
	if errors.Is(err, domain.ErrNotFound) {
		// Owner removed the subscription while the retry was pending.
		return false, s.deliveries.UpdateStatus(ctx, state.ID, domain.DeliveryFailed)
	}
	if err != nil {
		return false, fmt.Errorf("failed to load subscription: %w", err)
	}

	// A reminder that would arrive on or after the charge itself is noise;
	// the same cutoff the dispatcher applies.
	if sub.IsEnded(now) || !now.Before(state.DueDate) {
		return false, s.deliveries.UpdateStatus(ctx, state.ID, domain.DeliveryFailed)
	}

	var prefs *domain.NotificationPreferences
	if s.preferences != nil {
		p, err := s.preferences.GetByUserID(ctx, sub.UserID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return false, fmt.Errorf("failed to load preferences: %w", err)
		}
		prefs = p
	}
	settings := reminder.EffectiveSettings(sub, prefs)
	if !settings.Enabled {
		return false, s.deliveries.UpdateStatus(ctx, state.ID, domain.DeliveryFailed)
	}

	// A dispatcher run may have delivered this reminder while the retry was
	// pending; the dedup record is the source of truth for sent reminders.
	shouldSend, err := s.deduplicator.ShouldSend(ctx, state.SubscriptionID, state.IntervalDays, state.DueDate)
	if err != nil {
		return false, fmt.Errorf("dedup check failed: %w", err)
	}
	if !shouldSend {
		return false, s.deliveries.UpdateStatus(ctx, state.ID, domain.DeliverySent)
	}

	channel := domain.ChannelWebhook
	if settings.EmailEnabled {
		channel = domain.ChannelEmail
	}
	channelName := strings.ToLower(channel.String())

	if s.rateLimiter != nil {
		if err := s.rateLimiter.Wait(ctx, channelName); err != nil {
			return false, fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}

	msg := notifier.Message{
		UserID:         sub.UserID,
		SubscriptionID: sub.ID,
		Channel:        channel,
		Subscription:   sub.Name,
		Amount:         sub.Amount,
		Currency:       sub.Currency,
		DueDate:        state.DueDate,
		DaysUntilDue:   state.IntervalDays,
	}

	sendStart := s.now()
	_, sendErr := s.sender.Send(ctx, msg)
	s.metrics.ObserveReminderSendDuration(channelName, s.now().Sub(sendStart))

	attempt := state.AttemptCount + 1

	if sendErr == nil {
		if err := s.deduplicator.RecordSent(ctx, state.SubscriptionID, state.IntervalDays, state.DueDate); err != nil {
			return false, fmt.Errorf("failed to record sent reminder: %w", err)
		}
		state.Status = domain.DeliverySent
		state.AttemptCount = attempt
		state.LastError = nil
		state.LastAttemptAt = s.now().UTC()
		state.NextRetryAt = nil
		if err := s.deliveries.Upsert(ctx, state); err != nil {
			return false, fmt.Errorf("failed to mark delivery sent: %w", err)
		}
		s.metrics.IncReminderSent(channelName)
		return true, nil
	}

	errText := sendErr.Error()
	state.AttemptCount = attempt
	state.LastError = &errText
	state.LastAttemptAt = s.now().UTC()

	if notifier.IsTransient(sendErr) && attempt < s.maxAttempts {
		nextRetryAt := s.now().UTC().Add(computeRetryDelay(attempt, s.randIntn))
		state.Status = domain.DeliveryPendingRetry
		state.NextRetryAt = &nextRetryAt
		if err := s.deliveries.Upsert(ctx, state); err != nil {
			return false, fmt.Errorf("failed to reschedule delivery: %w", err)
		}
		s.metrics.IncRetryScheduled(channelName)
		return false, nil
	}

	state.Status = domain.DeliveryFailed
	state.NextRetryAt = nil
	if err := s.deliveries.Upsert(ctx, state); err != nil {
		return false, fmt.Errorf("failed to mark delivery failed: %w", err)
	}
	reason := "permanent_error"
	if notifier.IsTransient(sendErr) {
		reason = "retry_exhausted"
	}
	s.metrics.IncReminderFailed(channelName, reason)
	return false, nil
}
