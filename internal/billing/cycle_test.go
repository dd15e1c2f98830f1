package billing

import (
	"testing"
	"time"

	"github.com/subtrack/billing-engine/internal/domain"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNextBillingDateMonthlyDay31Oscillation(t *testing.T) {
	t.Parallel()

	first := date(2024, time.January, 31)

	// Anchor day 31 must land on the last day of short months and return
	// to the 31st afterwards, never drifting to the clamped day.
	want := []time.Time{
		date(2024, time.January, 31),
		date(2024, time.February, 29),
		date(2024, time.March, 31),
		date(2024, time.April, 30),
		date(2024, time.May, 31),
		date(2024, time.June, 30),
	}

	for elapsed, expected := range want {
		got := NextBillingDate(first, domain.CycleMonthly, 1, 31, elapsed)
		if got == nil {
			t.Fatalf("elapsed=%d: got nil", elapsed)
		}
		if !got.Equal(expected) {
			t.Fatalf("elapsed=%d: got %s, want %s", elapsed, got.Format("2006-01-02"), expected.Format("2006-01-02"))
		}
	}
}

func TestNextBillingDateMonthlyNonLeapFebruary(t *testing.T) {
	t.Parallel()

	first := date(2023, time.January, 31)
	got := NextBillingDate(first, domain.CycleMonthly, 1, 31, 1)
	if got == nil || !got.Equal(date(2023, time.February, 28)) {
		t.Fatalf("got %v, want 2023-02-28", got)
	}
}

func TestNextBillingDateDailyAndWeekly(t *testing.T) {
	t.Parallel()

	first := date(2024, time.March, 1)

	daily := NextBillingDate(first, domain.CycleDaily, 3, 1, 4)
	if daily == nil || !daily.Equal(date(2024, time.March, 13)) {
		t.Fatalf("daily = %v, want 2024-03-13", daily)
	}

	weekly := NextBillingDate(first, domain.CycleWeekly, 2, 1, 1)
	if weekly == nil || !weekly.Equal(date(2024, time.March, 15)) {
		t.Fatalf("weekly = %v, want 2024-03-15", weekly)
	}
}

func TestNextBillingDateQuarterlyUsesAnchor(t *testing.T) {
	t.Parallel()

	first := date(2024, time.January, 31)

	// Quarterly is monthly with 3x months: Jan 31 -> Apr 30 -> Jul 31.
	got := NextBillingDate(first, domain.CycleQuarterly, 1, 31, 1)
	if got == nil || !got.Equal(date(2024, time.April, 30)) {
		t.Fatalf("first quarter = %v, want 2024-04-30", got)
	}

	got = NextBillingDate(first, domain.CycleQuarterly, 1, 31, 2)
	if got == nil || !got.Equal(date(2024, time.July, 31)) {
		t.Fatalf("second quarter = %v, want 2024-07-31", got)
	}
}

func TestNextBillingDateYearlyLeapDayClamp(t *testing.T) {
	t.Parallel()

	first := date(2024, time.February, 29)

	nonLeap := NextBillingDate(first, domain.CycleYearly, 1, 29, 1)
	if nonLeap == nil || !nonLeap.Equal(date(2025, time.February, 28)) {
		t.Fatalf("non-leap target = %v, want 2025-02-28", nonLeap)
	}

	leap := NextBillingDate(first, domain.CycleYearly, 1, 29, 4)
	if leap == nil || !leap.Equal(date(2028, time.February, 29)) {
		t.Fatalf("leap target = %v, want 2028-02-29", leap)
	}
}

func TestNextBillingDateOneTime(t *testing.T) {
	t.Parallel()

	first := date(2024, time.May, 10)

	unpaid := NextBillingDate(first, domain.CycleOneTime, 1, 10, 0)
	if unpaid == nil || !unpaid.Equal(first) {
		t.Fatalf("unpaid one-time = %v, want %s", unpaid, first.Format("2006-01-02"))
	}

	if paid := NextBillingDate(first, domain.CycleOneTime, 1, 10, 1); paid != nil {
		t.Fatalf("paid one-time = %s, want nil", paid.Format("2006-01-02"))
	}
}

func TestNextBillingDateUnknownCycleFallsBackToMonthly(t *testing.T) {
	t.Parallel()

	first := date(2024, time.January, 31)
	got := NextBillingDate(first, domain.BillingCycle("FORTNIGHTLY"), 1, 31, 1)
	want := NextBillingDate(first, domain.CycleMonthly, 1, 31, 1)
	if got == nil || want == nil || !got.Equal(*want) {
		t.Fatalf("unknown cycle = %v, want monthly result %v", got, want)
	}
}

func TestNextBillingDateInvalidIntervalFallsBackToOne(t *testing.T) {
	t.Parallel()

	first := date(2024, time.January, 15)
	got := NextBillingDate(first, domain.CycleMonthly, 0, 15, 1)
	if got == nil || !got.Equal(date(2024, time.February, 15)) {
		t.Fatalf("got %v, want 2024-02-15", got)
	}

	got = NextBillingDate(first, domain.CycleMonthly, 99, 15, 1)
	if got == nil || !got.Equal(date(2024, time.February, 15)) {
		t.Fatalf("got %v, want 2024-02-15", got)
	}
}

func TestNextBillingDateIsPure(t *testing.T) {
	t.Parallel()

	first := date(2024, time.January, 31)
	a := NextBillingDate(first, domain.CycleMonthly, 2, 31, 5)
	b := NextBillingDate(first, domain.CycleMonthly, 2, 31, 5)
	if a == nil || b == nil || !a.Equal(*b) {
		t.Fatalf("repeated calls differ: %v vs %v", a, b)
	}
}

func TestNextBillingDateScenarioFromPaymentCount(t *testing.T) {
	t.Parallel()

	// Monthly, interval 1, started 2024-01-31: zero payments due on the
	// first billing date, then 2024-02-29 (leap year), then 2024-03-31.
	sub := &domain.Subscription{
		BillingCycle:     domain.CycleMonthly,
		BillingInterval:  1,
		StartDate:        date(2024, time.January, 31),
		FirstBillingDate: date(2024, time.January, 31),
		BillingCycleDay:  31,
	}

	for _, tc := range []struct {
		payments int
		want     time.Time
	}{
		{0, date(2024, time.January, 31)},
		{1, date(2024, time.February, 29)},
		{2, date(2024, time.March, 31)},
	} {
		got := NextBillingDateFor(sub, tc.payments)
		if got == nil || !got.Equal(tc.want) {
			t.Fatalf("payments=%d: got %v, want %s", tc.payments, got, tc.want.Format("2006-01-02"))
		}
	}
}

func TestNextBillingDateForNil(t *testing.T) {
	t.Parallel()

	if got := NextBillingDateFor(nil, 3); got != nil {
		t.Fatalf("got %v, want nil", got)
	}
}
