package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/subtrack/billing-engine/internal/dedup"
)

var _ dedup.Deduplicator = (*ReminderDeduplicator)(nil)

// ReminderDeduplicator stores one key per sent reminder with a rolling TTL.
// The key is content-addressed by (subscription, interval, due date), so a
// crashed or re-run dispatcher converges on the same suppression state.
//
// A zero window disables suppression entirely; every run may resend. That
// mode exists for testing and records nothing.
type ReminderDeduplicator struct {
	client *goredis.Client
	window time.Duration
	now    func() time.Time
}

func NewReminderDeduplicator(client *goredis.Client, windowHours int) (*ReminderDeduplicator, error) {
	return newReminderDeduplicator(client, time.Duration(windowHours)*time.Hour, time.Now)
}

func newReminderDeduplicator(client *goredis.Client, window time.Duration, nowFn func() time.Time) (*ReminderDeduplicator, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if window < 0 {
		return nil, fmt.Errorf("dedup window must not be negative")
	}
	if nowFn == nil {
		nowFn = time.Now
	}

	return &ReminderDeduplicator{
		client: client,
		window: window,
		now:    nowFn,
	}, nil
}

func (d *ReminderDeduplicator) ShouldSend(ctx context.Context, subscriptionID string, intervalDays int, dueDate time.Time) (bool, error) {
	if d == nil || d.client == nil {
		return false, fmt.Errorf("deduplicator is not initialized")
	}
	if d.window == 0 {
		return true, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	key, err := dedupKey(subscriptionID, intervalDays, dueDate)
	if err != nil {
		return false, err
	}

	exists, err := d.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check dedup key: %w", err)
	}

	return exists == 0, nil
}

func (d *ReminderDeduplicator) RecordSent(ctx context.Context, subscriptionID string, intervalDays int, dueDate time.Time) error {
	if d == nil || d.client == nil {
		return fmt.Errorf("deduplicator is not initialized")
	}
	if d.window == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	key, err := dedupKey(subscriptionID, intervalDays, dueDate)
	if err != nil {
		return err
	}

	sentAt := d.now().UTC().Format(time.RFC3339)
	if err := d.client.Set(ctx, key, sentAt, d.window).Err(); err != nil {
		return fmt.Errorf("failed to record sent reminder: %w", err)
	}

	return nil
}

func dedupKey(subscriptionID string, intervalDays int, dueDate time.Time) (string, error) {
	trimmed := strings.TrimSpace(subscriptionID)
	if trimmed == "" {
		return "", fmt.Errorf("subscription id is required")
	}
	if intervalDays <= 0 {
		return "", fmt.Errorf("interval days must be positive")
	}

	return fmt.Sprintf("reminder:sent:%s:%d:%s", trimmed, intervalDays, dueDate.UTC().Format("2006-01-02")), nil
}
