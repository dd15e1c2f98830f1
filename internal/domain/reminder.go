package domain

import (
	"fmt"
	"strings"
	"time"
)

// ReminderEvent is a single planned notification: "tell the owner of this
// subscription, IntervalDays before DueDate". Events are recomputed fresh on
// every dispatcher run and never mutated.
type ReminderEvent struct {
	SubscriptionID string
	UserID         string
	IntervalDays   int
	DueDate        time.Time
	SendAt         time.Time
}

// Key returns the content address used for dedup and delivery state. Two
// runs planning the same reminder always produce the same key.
func (e ReminderEvent) Key() string {
	return fmt.Sprintf("%s:%d:%s", e.SubscriptionID, e.IntervalDays, e.DueDate.Format("2006-01-02"))
}

// DeliveryStatus is the lifecycle state of a reminder delivery record.
type DeliveryStatus string

const (
	DeliverySent         DeliveryStatus = "SENT"
	DeliveryPendingRetry DeliveryStatus = "PENDING_RETRY"
	DeliveryFailed       DeliveryStatus = "FAILED"
)

func (s DeliveryStatus) String() string { return string(s) }

func (s DeliveryStatus) IsValid() bool {
	switch s {
	case DeliverySent, DeliveryPendingRetry, DeliveryFailed:
		return true
	}
	return false
}

func ParseDeliveryStatusFromString(s string) (DeliveryStatus, error) {
	st := DeliveryStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid delivery status %q", ErrValidation, s)
	}
	return st, nil
}

// DeliveryState records send attempts for one reminder, keyed by the
// (subscription, interval, due date) triple. A crashed run is safe to
// re-run because the key is content-addressed.
type DeliveryState struct {
	ID             string         `gorm:"type:uuid;primaryKey"`
	SubscriptionID string         `gorm:"type:uuid;not null;uniqueIndex:idx_delivery_key,priority:1"`
	IntervalDays   int            `gorm:"not null;uniqueIndex:idx_delivery_key,priority:2"`
	DueDate        time.Time      `gorm:"type:date;not null;uniqueIndex:idx_delivery_key,priority:3"`
	Status         DeliveryStatus `gorm:"type:varchar(20);not null"`
	AttemptCount   int            `gorm:"not null;default:0"`
	LastError      *string        `gorm:"type:text"`
	LastAttemptAt  time.Time      `gorm:"not null"`
	NextRetryAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
