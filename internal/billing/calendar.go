// Package billing holds the shared calendar and billing-cycle math. It is
// deliberately dependency-free so the batch dispatcher and any interactive
// preview resolve dates through the same code path.
package billing

import "time"

// IsLeapYear reports whether year is a Gregorian leap year.
func IsLeapYear(year int) bool {
	if year%400 == 0 {
		return true
	}
	if year%100 == 0 {
		return false
	}
	return year%4 == 0
}

// LastDayOfMonth returns the number of days in the given month (28-31).
func LastDayOfMonth(year int, month time.Month) int {
	// Day 0 of the next month normalizes to the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DateOnly truncates an instant to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ClampDayToMonth returns day limited to the last valid day of the month.
func ClampDayToMonth(year int, month time.Month, day int) int {
	if last := LastDayOfMonth(year, month); day > last {
		return last
	}
	if day < 1 {
		return 1
	}
	return day
}

// AddMonthsAnchored moves t forward by the given number of months and
// re-derives the day-of-month from anchorDay, clamping to the target
// month's length. Unlike time.AddDate this never rolls over into the next
// month, and a clamped result does not overwrite the anchor: adding one
// month at a time from Jan 31 yields Feb 28 (or 29) and then Mar 31 again.
func AddMonthsAnchored(t time.Time, months, anchorDay int) time.Time {
	year, month, _ := t.UTC().Date()

	total := int(month) - 1 + months
	year += total / 12
	monthIndex := total % 12
	if monthIndex < 0 {
		monthIndex += 12
		year--
	}
	month = time.Month(monthIndex + 1)

	day := ClampDayToMonth(year, month, anchorDay)
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
