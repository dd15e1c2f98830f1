// Package dedup declares the suppression contract that keeps overlapping
// dispatcher runs from re-sending the same reminder.
package dedup

import (
	"context"
	"time"
)

// Deduplicator gates sends per (subscription, interval, due date) triple.
//
// ShouldSend reports whether no send was recorded for the triple inside the
// configured rolling window. RecordSent is the only mutator and must be
// called only after a confirmed successful dispatch, so a failed send stays
// eligible for the next run.
type Deduplicator interface {
	ShouldSend(ctx context.Context, subscriptionID string, intervalDays int, dueDate time.Time) (bool, error)
	RecordSent(ctx context.Context, subscriptionID string, intervalDays int, dueDate time.Time) error
}
