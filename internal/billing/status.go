package billing

import (
	"time"

	"github.com/subtrack/billing-engine/internal/domain"
)

// Status is the derived lifecycle state of a subscription. It is never
// persisted; every read recomputes it from the end date, the computed next
// billing date, and the current wall clock.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusOverdue Status = "OVERDUE"
	StatusEnded   Status = "ENDED"
)

func (s Status) String() string { return string(s) }

// Resolution is the outcome of a status computation.
type Resolution struct {
	Status          Status
	Overdue         bool
	NextBillingDate *time.Time
}

// ResolveStatus classifies a subscription at the given instant.
//
// An end date in the past dominates everything else: an ended subscription
// is never overdue, whatever the billing math says. Otherwise the
// subscription is overdue when its next due date lies strictly before the
// start of today, and active in every remaining case, including one-time
// subscriptions with no due date left.
func ResolveStatus(sub *domain.Subscription, nextBillingDate *time.Time, now time.Time) Resolution {
	if sub != nil && sub.IsEnded(now) {
		return Resolution{Status: StatusEnded, Overdue: false, NextBillingDate: nextBillingDate}
	}

	if nextBillingDate != nil {
		startOfToday := DateOnly(now)
		if DateOnly(*nextBillingDate).Before(startOfToday) {
			return Resolution{Status: StatusOverdue, Overdue: true, NextBillingDate: nextBillingDate}
		}
	}

	return Resolution{Status: StatusActive, Overdue: false, NextBillingDate: nextBillingDate}
}
