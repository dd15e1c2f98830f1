package billing

import (
	"time"

	"github.com/subtrack/billing-engine/internal/domain"
)

// fallbackCycle is applied when a stored billing cycle value is not
// recognized. A malformed subscription must never abort a dispatcher run,
// so the calculator degrades to monthly behavior; callers are expected to
// log the occurrence.
// TODO: revisit whether an unknown cycle should be a hard configuration
// error once product confirms the intended behavior.
const fallbackCycle = domain.CycleMonthly

const fallbackInterval = 1

// NextBillingDate derives the due date that follows elapsedPeriods
// completed billing periods. With zero payments logged the next due date is
// the first billing date itself; each payment advances one period.
//
// The function is pure: identical inputs always produce the identical date,
// and it reads no clock. A nil result means no further charge is due
// (a one-time subscription that has already been paid).
func NextBillingDate(firstBillingDate time.Time, cycle domain.BillingCycle, interval, anchorDay, elapsedPeriods int) *time.Time {
	first := DateOnly(firstBillingDate)

	if interval < domain.MinBillingInterval || interval > domain.MaxBillingInterval {
		interval = fallbackInterval
	}
	if elapsedPeriods < 0 {
		elapsedPeriods = 0
	}
	if anchorDay < 1 || anchorDay > 31 {
		anchorDay = first.Day()
	}

	if cycle == domain.CycleOneTime {
		if elapsedPeriods == 0 {
			return &first
		}
		return nil
	}

	if elapsedPeriods == 0 {
		return &first
	}

	var next time.Time
	switch cycle {
	case domain.CycleDaily:
		next = first.AddDate(0, 0, interval*elapsedPeriods)
	case domain.CycleWeekly:
		next = first.AddDate(0, 0, 7*interval*elapsedPeriods)
	case domain.CycleMonthly:
		next = AddMonthsAnchored(first, interval*elapsedPeriods, anchorDay)
	case domain.CycleQuarterly:
		next = AddMonthsAnchored(first, 3*interval*elapsedPeriods, anchorDay)
	case domain.CycleYearly:
		next = addYearsClamped(first, interval*elapsedPeriods)
	default:
		next = AddMonthsAnchored(first, interval*elapsedPeriods, anchorDay)
	}

	return &next
}

// NextBillingDateFor is the subscription-shaped convenience wrapper used by
// the status resolver and the dispatcher.
func NextBillingDateFor(sub *domain.Subscription, paymentCount int) *time.Time {
	if sub == nil {
		return nil
	}
	return NextBillingDate(sub.FirstBillingDate, sub.BillingCycle, sub.BillingInterval, sub.BillingCycleDay, paymentCount)
}

// IsKnownCycle reports whether the calculator handles the cycle natively
// rather than through the monthly fallback.
func IsKnownCycle(cycle domain.BillingCycle) bool {
	return cycle.IsValid()
}

// addYearsClamped keeps the anchor month and day, clamping Feb 29 to
// Feb 28 when the target year is not a leap year.
func addYearsClamped(t time.Time, years int) time.Time {
	year, month, day := t.UTC().Date()
	year += years
	day = ClampDayToMonth(year, month, day)
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
