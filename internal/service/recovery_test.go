package service

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/subtrack/billing-engine/internal/domain"
	"github.com/subtrack/billing-engine/internal/notifier"
)

func pendingDelivery() domain.DeliveryState {
	retryAt := dispatchNow.Add(-time.Minute)
	return domain.DeliveryState{
		ID:             "d1",
		SubscriptionID: "s1",
		IntervalDays:   7,
		DueDate:        time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC),
		Status:         domain.DeliveryPendingRetry,
		AttemptCount:   1,
		NextRetryAt:    &retryAt,
	}
}

func newTestRecovery(
	t *testing.T,
	deliveries *fakeDeliveryStateRepo,
	subs *fakeSubscriptionRepo,
	dedup *fakeDeduplicator,
	sender *fakeNotifier,
) *RecoveryService {
	t.Helper()

	s, err := NewRecoveryService(
		deliveries,
		subs,
		&fakePreferencesRepo{},
		dedup,
		sender,
		&fakeRateLimiter{},
		3,
		50,
		zap.NewNop(),
	)
	if err != nil {
		t.Fatalf("NewRecoveryService() error = %v", err)
	}
	s.now = func() time.Time { return dispatchNow }
	s.randIntn = func(n int) int { return 0 }
	return s
}

func TestRecoveryRunResendsDueDelivery(t *testing.T) {
	t.Parallel()

	var recorded bool
	var upserted *domain.DeliveryState

	sub := dueSubscription()
	deliveries := &fakeDeliveryStateRepo{
		getDueForRetryFn: func(ctx context.Context, now time.Time, maxAttempts, limit int) ([]domain.DeliveryState, error) {
			return []domain.DeliveryState{pendingDelivery()}, nil
		},
		upsertFn: func(ctx context.Context, state *domain.DeliveryState) error {
			upserted = state
			return nil
		},
	}
	subs := &fakeSubscriptionRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Subscription, error) {
			return &sub, nil
		},
	}
	dedup := &fakeDeduplicator{
		recordSentFn: func(ctx context.Context, subscriptionID string, intervalDays int, dueDate time.Time) error {
			recorded = true
			return nil
		},
	}

	s := newTestRecovery(t, deliveries, subs, dedup, &fakeNotifier{})

	recovered, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if recovered != 1 {
		t.Fatalf("recovered = %d, want 1", recovered)
	}
	if !recorded {
		t.Fatal("successful resend must record the dedup entry")
	}
	if upserted == nil || upserted.Status != domain.DeliverySent {
		t.Fatalf("delivery state = %+v, want SENT", upserted)
	}
	if upserted.AttemptCount != 2 {
		t.Fatalf("attempt count = %d, want 2", upserted.AttemptCount)
	}
	if upserted.NextRetryAt != nil {
		t.Fatal("sent delivery must clear its retry timestamp")
	}
}

func TestRecoveryRunAbandonsDeliveryPastDueDate(t *testing.T) {
	t.Parallel()

	state := pendingDelivery()
	state.DueDate = time.Date(2026, time.March, 7, 0, 0, 0, 0, time.UTC)

	sub := dueSubscription()
	sent := false
	var markedStatus domain.DeliveryStatus

	deliveries := &fakeDeliveryStateRepo{
		getDueForRetryFn: func(ctx context.Context, now time.Time, maxAttempts, limit int) ([]domain.DeliveryState, error) {
			return []domain.DeliveryState{state}, nil
		},
		updateStatusFn: func(ctx context.Context, id string, status domain.DeliveryStatus) error {
			markedStatus = status
			return nil
		},
	}
	subs := &fakeSubscriptionRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Subscription, error) {
			return &sub, nil
		},
	}
	sender := &fakeNotifier{
		sendFn: func(ctx context.Context, msg notifier.Message) (*notifier.SendResponse, error) {
			sent = true
			return &notifier.SendResponse{StatusCode: 202}, nil
		},
	}

	s := newTestRecovery(t, deliveries, subs, &fakeDeduplicator{}, sender)

	recovered, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if recovered != 0 {
		t.Fatalf("recovered = %d, want 0", recovered)
	}
	if sent {
		t.Fatal("delivery past its due date must not be re-sent")
	}
	if markedStatus != domain.DeliveryFailed {
		t.Fatalf("status = %s, want FAILED", markedStatus)
	}
}

func TestRecoveryRunSkipsAlreadySentDelivery(t *testing.T) {
	t.Parallel()

	sub := dueSubscription()
	sent := false
	var markedStatus domain.DeliveryStatus

	deliveries := &fakeDeliveryStateRepo{
		getDueForRetryFn: func(ctx context.Context, now time.Time, maxAttempts, limit int) ([]domain.DeliveryState, error) {
			return []domain.DeliveryState{pendingDelivery()}, nil
		},
		updateStatusFn: func(ctx context.Context, id string, status domain.DeliveryStatus) error {
			markedStatus = status
			return nil
		},
	}
	subs := &fakeSubscriptionRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Subscription, error) {
			return &sub, nil
		},
	}
	dedup := &fakeDeduplicator{
		shouldSendFn: func(ctx context.Context, subscriptionID string, intervalDays int, dueDate time.Time) (bool, error) {
			return false, nil
		},
	}
	sender := &fakeNotifier{
		sendFn: func(ctx context.Context, msg notifier.Message) (*notifier.SendResponse, error) {
			sent = true
			return &notifier.SendResponse{StatusCode: 202}, nil
		},
	}

	s := newTestRecovery(t, deliveries, subs, dedup, sender)

	recovered, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if recovered != 0 {
		t.Fatalf("recovered = %d, want 0", recovered)
	}
	if sent {
		t.Fatal("reminder delivered by another run must not be re-sent")
	}
	if markedStatus != domain.DeliverySent {
		t.Fatalf("status = %s, want SENT", markedStatus)
	}
}

func TestRecoveryRunAbandonsDeletedSubscription(t *testing.T) {
	t.Parallel()

	var markedStatus domain.DeliveryStatus
	deliveries := &fakeDeliveryStateRepo{
		getDueForRetryFn: func(ctx context.Context, now time.Time, maxAttempts, limit int) ([]domain.DeliveryState, error) {
			return []domain.DeliveryState{pendingDelivery()}, nil
		},
		updateStatusFn: func(ctx context.Context, id string, status domain.DeliveryStatus) error {
			markedStatus = status
			return nil
		},
	}
	subs := &fakeSubscriptionRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Subscription, error) {
			return nil, domain.ErrNotFound
		},
	}

	s := newTestRecovery(t, deliveries, subs, &fakeDeduplicator{}, &fakeNotifier{})

	recovered, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if recovered != 0 {
		t.Fatalf("recovered = %d, want 0", recovered)
	}
	if markedStatus != domain.DeliveryFailed {
		t.Fatalf("status = %s, want FAILED", markedStatus)
	}
}

func TestRecoveryRunExhaustsAttempts(t *testing.T) {
	t.Parallel()

	state := pendingDelivery()
	state.AttemptCount = 2

	sub := dueSubscription()
	var upserted *domain.DeliveryState

	deliveries := &fakeDeliveryStateRepo{
		getDueForRetryFn: func(ctx context.Context, now time.Time, maxAttempts, limit int) ([]domain.DeliveryState, error) {
			return []domain.DeliveryState{state}, nil
		},
		upsertFn: func(ctx context.Context, s *domain.DeliveryState) error {
			upserted = s
			return nil
		},
	}
	subs := &fakeSubscriptionRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Subscription, error) {
			return &sub, nil
		},
	}
	sender := &fakeNotifier{
		sendFn: func(ctx context.Context, msg notifier.Message) (*notifier.SendResponse, error) {
			return nil, &notifier.SendError{StatusCode: 503, Message: "unavailable", Transient: true}
		},
	}

	s := newTestRecovery(t, deliveries, subs, &fakeDeduplicator{}, sender)

	recovered, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if recovered != 0 {
		t.Fatalf("recovered = %d, want 0", recovered)
	}
	if upserted == nil || upserted.Status != domain.DeliveryFailed {
		t.Fatalf("delivery state = %+v, want FAILED", upserted)
	}
	if upserted.AttemptCount != 3 {
		t.Fatalf("attempt count = %d, want 3", upserted.AttemptCount)
	}
}
