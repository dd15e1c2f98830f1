package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/subtrack/billing-engine/internal/billing"
	"github.com/subtrack/billing-engine/internal/dedup"
	"github.com/subtrack/billing-engine/internal/domain"
	"github.com/subtrack/billing-engine/internal/notifier"
	"github.com/subtrack/billing-engine/internal/observability"
	"github.com/subtrack/billing-engine/internal/ratelimit"
	"github.com/subtrack/billing-engine/internal/reminder"
	"github.com/subtrack/billing-engine/internal/repository"
)

const (
	dispatchJobName = "reminder-dispatch"

	defaultScanBatchSize     = 500
	defaultSendConcurrency   = 8
	defaultMaxSendAttempts   = 5
	defaultDispatchTolerance = time.Hour

	maxRetryDelay        = time.Hour
	baseRetryDelay       = time.Minute
	maxRetryJitterMillis = 250
)

// Lease guards a named job against concurrent runs.
type Lease interface {
	Acquire(ctx context.Context, job string) (token string, ok bool, err error)
	Release(ctx context.Context, job, token string) error
}

// DispatchResult summarizes one dispatcher run.
type DispatchResult struct {
	Skipped  bool `json:"skipped"`
	Scanned  int  `json:"scanned"`
	Planned  int  `json:"planned"`
	Sent     int  `json:"sent"`
	Deferred int  `json:"deferred"`
	Failed   int  `json:"failed"`
}

// ReminderDispatcher runs the scan, plan, filter, send pipeline over all
// live subscriptions. A run holds the dispatch lease for its whole duration;
// an overlapping trigger is skipped, never queued.
type ReminderDispatcher struct {
	subscriptions repository.SubscriptionRepository
	payments      repository.PaymentRepository
	preferences   repository.PreferencesRepository
	deliveries    repository.DeliveryStateRepository
	deduplicator  dedup.Deduplicator
	lease         Lease
	sender        notifier.Notifier
	rateLimiter   ratelimit.RateLimiter
	logger        *zap.Logger
	metrics       *observability.Metrics

	tolerance     time.Duration
	concurrency   int
	maxAttempts   int
	scanBatchSize int
	now           func() time.Time
	randIntn      func(n int) int
}

type DispatcherOptions struct {
	Tolerance     time.Duration
	Concurrency   int
	MaxAttempts   int
	ScanBatchSize int
}

func NewReminderDispatcher(
	subscriptions repository.SubscriptionRepository,
	payments repository.PaymentRepository,
	preferences repository.PreferencesRepository,
	deliveries repository.DeliveryStateRepository,
	deduplicator dedup.Deduplicator,
	lease Lease,
	sender notifier.Notifier,
	rateLimiter ratelimit.RateLimiter,
	opts DispatcherOptions,
	logger *zap.Logger,
) (*ReminderDispatcher, error) {
	if subscriptions == nil {
		return nil, fmt.Errorf("subscription repository is required")
	}
	if payments == nil {
		return nil, fmt.Errorf("payment repository is required")
	}
	if deliveries == nil {
		return nil, fmt.Errorf("delivery state repository is required")
	}
	if deduplicator == nil {
		return nil, fmt.Errorf("deduplicator is required")
	}
	if lease == nil {
		return nil, fmt.Errorf("run lease is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if opts.Tolerance <= 0 {
		opts.Tolerance = defaultDispatchTolerance
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = defaultSendConcurrency
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = defaultMaxSendAttempts
	}
	if opts.ScanBatchSize < 1 {
		opts.ScanBatchSize = defaultScanBatchSize
	}

	return &ReminderDispatcher{
		subscriptions: subscriptions,
		payments:      payments,
		preferences:   preferences,
		deliveries:    deliveries,
		deduplicator:  deduplicator,
		lease:         lease,
		sender:        sender,
		rateLimiter:   rateLimiter,
		logger:        logger,
		tolerance:     opts.Tolerance,
		concurrency:   opts.Concurrency,
		maxAttempts:   opts.MaxAttempts,
		scanBatchSize: opts.ScanBatchSize,
		now:           time.Now,
		randIntn:      rand.Intn,
	}, nil
}

func (d *ReminderDispatcher) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

// dispatchUnit is one reminder that survived planning and filtering and is
// ready to go out.
type dispatchUnit struct {
	sub     domain.Subscription
	event   domain.ReminderEvent
	channel domain.Channel
}

// Run executes a single dispatcher pass. Run never sends the same reminder
// twice inside the dedup window: the suppression record is written only
// after the transport confirms the send.
func (d *ReminderDispatcher) Run(ctx context.Context) (*DispatchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	token, ok, err := d.lease.Acquire(ctx, dispatchJobName)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire dispatch lease: %w", err)
	}
	if !ok {
		d.logger.Info("dispatch run already in progress, skipping")
		return &DispatchResult{Skipped: true}, nil
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.lease.Release(releaseCtx, dispatchJobName, token); err != nil {
			d.logger.Error("failed to release dispatch lease", zap.Error(err))
		}
	}()

	d.metrics.SetDispatchInFlight(true)
	defer d.metrics.SetDispatchInFlight(false)

	start := d.now()
	result := &DispatchResult{}

	for offset := 0; ; offset += d.scanBatchSize {
		subs, err := d.subscriptions.ListNotEnded(ctx, start.UTC(), d.scanBatchSize, offset)
		if err != nil {
			return result, fmt.Errorf("failed to scan subscriptions: %w", err)
		}
		if len(subs) == 0 {
			break
		}

		result.Scanned += len(subs)
		if err := d.dispatchPage(ctx, subs, result); err != nil {
			return result, err
		}

		if len(subs) < d.scanBatchSize {
			break
		}
	}

	d.metrics.ObserveDispatchRunDuration(d.now().Sub(start))
	d.logger.Info("dispatch run finished",
		zap.Int("scanned", result.Scanned),
		zap.Int("planned", result.Planned),
		zap.Int("sent", result.Sent),
		zap.Int("deferred", result.Deferred),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", d.now().Sub(start)),
	)

	return result, nil
}

func (d *ReminderDispatcher) dispatchPage(ctx context.Context, subs []domain.Subscription, result *DispatchResult) error {
	now := d.now().UTC()

	ids := make([]string, 0, len(subs))
	userIDs := make([]string, 0, len(subs))
	seenUsers := make(map[string]struct{}, len(subs))
	for i := range subs {
		ids = append(ids, subs[i].ID)
		if _, ok := seenUsers[subs[i].UserID]; !ok {
			seenUsers[subs[i].UserID] = struct{}{}
			userIDs = append(userIDs, subs[i].UserID)
		}
	}

	paymentCounts, err := d.payments.CountForSubscriptions(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to count payments: %w", err)
	}

	prefsByUser := map[string]domain.NotificationPreferences{}
	if d.preferences != nil {
		prefsByUser, err = d.preferences.GetForUsers(ctx, userIDs)
		if err != nil {
			return fmt.Errorf("failed to load notification preferences: %w", err)
		}
	}

	units := make([]dispatchUnit, 0, len(subs))
	for i := range subs {
		sub := subs[i]

		var prefs *domain.NotificationPreferences
		if p, ok := prefsByUser[sub.UserID]; ok {
			prefs = &p
		}
		settings := reminder.EffectiveSettings(&sub, prefs)
		if !settings.Enabled {
			continue
		}

		if !billing.IsKnownCycle(sub.BillingCycle) {
			d.logger.Warn("subscription has unknown billing cycle, treating as monthly",
				zap.String("subscriptionId", sub.ID),
				zap.String("billingCycle", string(sub.BillingCycle)),
			)
		}

		next := billing.NextBillingDateFor(&sub, paymentCounts[sub.ID])
		events := reminder.PlanReminders(&sub, settings.ReminderIntervals, next, now)
		result.Planned += len(events)

		channel := domain.ChannelWebhook
		if settings.EmailEnabled {
			channel = domain.ChannelEmail
		}

		for _, event := range events {
			if event.SendAt.After(now.Add(d.tolerance)) {
				result.Deferred++
				d.metrics.IncReminderDeferred("not_yet_due")
				continue
			}
			if !now.Before(event.DueDate) {
				result.Deferred++
				d.metrics.IncReminderDeferred("past_due")
				continue
			}

			shouldSend, err := d.deduplicator.ShouldSend(ctx, event.SubscriptionID, event.IntervalDays, event.DueDate)
			if err != nil {
				return fmt.Errorf("dedup check failed: %w", err)
			}
			if !shouldSend {
				result.Deferred++
				d.metrics.IncReminderDeferred("already_sent")
				continue
			}

			units = append(units, dispatchUnit{sub: sub, event: event, channel: channel})
		}
	}

	if len(units) == 0 {
		return nil
	}

	var mu sync.Mutex
	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)

	for i := range units {
		unit := units[i]
		g.Go(func() error {
			sent, err := d.sendUnit(groupCtx, unit)
			if err != nil {
				return err
			}

			mu.Lock()
			if sent {
				result.Sent++
			} else {
				result.Failed++
			}
			mu.Unlock()
			return nil
		})
	}

	return g.Wait()
}

// sendUnit delivers one reminder. The return distinguishes delivery outcome
// from pipeline failure: (false, nil) means the send failed and was recorded
// for recovery, while a non-nil error aborts the run.
func (d *ReminderDispatcher) sendUnit(ctx context.Context, unit dispatchUnit) (bool, error) {
	channelName := strings.ToLower(unit.channel.String())

	if d.rateLimiter != nil {
		if err := d.rateLimiter.Wait(ctx, channelName); err != nil {
			return false, fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}

	msg := notifier.Message{
		UserID:         unit.event.UserID,
		SubscriptionID: unit.event.SubscriptionID,
		Channel:        unit.channel,
		Subscription:   unit.sub.Name,
		Amount:         unit.sub.Amount,
		Currency:       unit.sub.Currency,
		DueDate:        unit.event.DueDate,
		DaysUntilDue:   unit.event.IntervalDays,
	}

	sendStart := d.now()
	_, sendErr := d.sender.Send(ctx, msg)
	d.metrics.ObserveReminderSendDuration(channelName, d.now().Sub(sendStart))

	attempt, err := d.nextAttemptNumber(ctx, unit.event)
	if err != nil {
		return false, err
	}

	if sendErr == nil {
		if err := d.deduplicator.RecordSent(ctx, unit.event.SubscriptionID, unit.event.IntervalDays, unit.event.DueDate); err != nil {
			return false, fmt.Errorf("failed to record sent reminder: %w", err)
		}
		if err := d.markDelivery(ctx, unit.event, domain.DeliverySent, attempt, nil, nil); err != nil {
			return false, err
		}
		d.metrics.IncReminderSent(channelName)
		return true, nil
	}

	d.logger.Warn("reminder send failed",
		zap.String("subscriptionId", unit.event.SubscriptionID),
		zap.Int("intervalDays", unit.event.IntervalDays),
		zap.Error(sendErr),
	)

	if notifier.IsTransient(sendErr) && attempt < d.maxAttempts {
		nextRetryAt := d.now().UTC().Add(computeRetryDelay(attempt, d.randIntn))
		if err := d.markDelivery(ctx, unit.event, domain.DeliveryPendingRetry, attempt, sendErr, &nextRetryAt); err != nil {
			return false, err
		}
		d.metrics.IncRetryScheduled(channelName)
	} else {
		if err := d.markDelivery(ctx, unit.event, domain.DeliveryFailed, attempt, sendErr, nil); err != nil {
			return false, err
		}
		reason := "permanent_error"
		if notifier.IsTransient(sendErr) {
			reason = "retry_exhausted"
		}
		d.metrics.IncReminderFailed(channelName, reason)
	}

	return false, nil
}

func (d *ReminderDispatcher) nextAttemptNumber(ctx context.Context, event domain.ReminderEvent) (int, error) {
	existing, err := d.deliveries.GetByKey(ctx, event.SubscriptionID, event.IntervalDays, event.DueDate)
	if errors.Is(err, domain.ErrNotFound) {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load delivery state: %w", err)
	}
	return existing.AttemptCount + 1, nil
}

func (d *ReminderDispatcher) markDelivery(ctx context.Context, event domain.ReminderEvent, status domain.DeliveryStatus, attempt int, sendErr error, nextRetryAt *time.Time) error {
	var lastError *string
	if sendErr != nil {
		value := sendErr.Error()
		lastError = &value
	}

	state := &domain.DeliveryState{
		ID:             uuid.NewString(),
		SubscriptionID: event.SubscriptionID,
		IntervalDays:   event.IntervalDays,
		DueDate:        event.DueDate,
		Status:         status,
		AttemptCount:   attempt,
		LastError:      lastError,
		LastAttemptAt:  d.now().UTC(),
		NextRetryAt:    nextRetryAt,
	}

	if err := d.deliveries.Upsert(ctx, state); err != nil {
		return fmt.Errorf("failed to upsert delivery state: %w", err)
	}
	return nil
}

// computeRetryDelay doubles the base delay per attempt up to the cap and
// adds a small jitter so retries do not align across deliveries.
func computeRetryDelay(attemptNumber int, randIntn func(n int) int) time.Duration {
	if attemptNumber < 1 {
		attemptNumber = 1
	}

	delay := baseRetryDelay
	for i := 1; i < attemptNumber; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			delay = maxRetryDelay
			break
		}
	}

	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	jitterMillis := 0
	if randIntn != nil && maxRetryJitterMillis > 0 {
		jitterMillis = randIntn(maxRetryJitterMillis + 1)
	}

	return delay + time.Duration(jitterMillis)*time.Millisecond
}
