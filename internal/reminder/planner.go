// Package reminder expands a subscription's notification configuration into
// concrete reminder events ahead of its next charge.
package reminder

import (
	"sort"
	"time"

	"github.com/subtrack/billing-engine/internal/billing"
	"github.com/subtrack/billing-engine/internal/domain"
)

// EffectiveSettings resolves the notification configuration actually applied
// to a subscription: its own overrides when it opts out of the user
// defaults, otherwise the owner's preferences. A nil prefs argument stands
// for a user who never stored preferences and yields the system defaults.
func EffectiveSettings(sub *domain.Subscription, prefs *domain.NotificationPreferences) domain.NotificationSettings {
	if sub != nil && !sub.UseDefaultNotifications {
		return domain.NotificationSettings{
			Enabled:           sub.NotificationsEnabled,
			EmailEnabled:      sub.EmailEnabled,
			ReminderIntervals: append([]int(nil), sub.ReminderIntervals...),
		}
	}

	if prefs == nil {
		return domain.NotificationSettings{
			Enabled:           true,
			EmailEnabled:      true,
			ReminderIntervals: append([]int(nil), domain.DefaultReminderIntervals...),
		}
	}

	return domain.NotificationSettings{
		Enabled:           prefs.NotificationsEnabled,
		EmailEnabled:      prefs.EmailEnabled,
		ReminderIntervals: append([]int(nil), prefs.ReminderIntervals...),
	}
}

// PlanReminders emits one event per configured interval for the given due
// date, ordered by send instant. The plan is recomputed from scratch on
// every call and carries no state.
//
// Intervals that collapse onto the same calendar day stay distinct events:
// a 7-day and a 3-day notice are separate reminders even when a due-date
// shift makes them land together. Instants already in the past are still
// emitted; the dispatcher decides whether a late send is appropriate.
func PlanReminders(sub *domain.Subscription, intervals []int, nextBillingDate *time.Time, now time.Time) []domain.ReminderEvent {
	if sub == nil || nextBillingDate == nil {
		return nil
	}
	if sub.IsEnded(now) {
		return nil
	}
	if len(intervals) == 0 {
		return nil
	}

	due := billing.DateOnly(*nextBillingDate)

	ordered := append([]int(nil), intervals...)
	sort.Sort(sort.Reverse(sort.IntSlice(ordered)))

	events := make([]domain.ReminderEvent, 0, len(ordered))
	for _, days := range ordered {
		if days <= 0 {
			continue
		}
		events = append(events, domain.ReminderEvent{
			SubscriptionID: sub.ID,
			UserID:         sub.UserID,
			IntervalDays:   days,
			DueDate:        due,
			SendAt:         due.AddDate(0, 0, -days),
		})
	}

	return events
}
