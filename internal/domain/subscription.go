package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BillingCycle is the recurrence unit of a subscription.
type BillingCycle string

const (
	CycleDaily     BillingCycle = "DAILY"
	CycleWeekly    BillingCycle = "WEEKLY"
	CycleMonthly   BillingCycle = "MONTHLY"
	CycleQuarterly BillingCycle = "QUARTERLY"
	CycleYearly    BillingCycle = "YEARLY"
	CycleOneTime   BillingCycle = "ONE_TIME"
)

func (c BillingCycle) String() string { return string(c) }

func (c BillingCycle) IsValid() bool {
	switch c {
	case CycleDaily, CycleWeekly, CycleMonthly, CycleQuarterly, CycleYearly, CycleOneTime:
		return true
	}
	return false
}

func ParseBillingCycleFromString(s string) (BillingCycle, error) {
	c := BillingCycle(strings.ToUpper(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", fmt.Errorf("%w: invalid billing cycle %q", ErrValidation, s)
	}
	return c, nil
}

// Billing interval bounds ("every N cycles").
const (
	MinBillingInterval = 1
	MaxBillingInterval = 12
)

// Subscription is a recurring charge tracked for a user. Billing
// configuration fields are immutable after creation; the engine never
// mutates a subscription, it only derives dates and status from it.
type Subscription struct {
	ID       string          `gorm:"type:uuid;primaryKey"`
	UserID   string          `gorm:"type:uuid;not null"`
	Name     string          `gorm:"type:varchar(255);not null"`
	Amount   decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	Currency string          `gorm:"type:varchar(3);not null"`

	BillingCycle     BillingCycle `gorm:"type:varchar(10);not null"`
	BillingInterval  int          `gorm:"not null;default:1"`
	StartDate        time.Time    `gorm:"type:date;not null"`
	FirstBillingDate time.Time    `gorm:"type:date;not null"`
	// BillingCycleDay is captured once from StartDate's day-of-month at
	// creation and never recalculated from a later payment.
	BillingCycleDay int        `gorm:"not null"`
	EndDate         *time.Time `gorm:"type:date"`

	UseDefaultNotifications bool  `gorm:"not null;default:true"`
	NotificationsEnabled    bool  `gorm:"not null;default:true"`
	EmailEnabled            bool  `gorm:"not null;default:true"`
	ReminderIntervals       []int `gorm:"type:jsonb;serializer:json"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s *Subscription) Validate() error {
	if strings.TrimSpace(s.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if !s.BillingCycle.IsValid() {
		return fmt.Errorf("%w: invalid billing cycle %q", ErrValidation, s.BillingCycle)
	}
	if s.BillingInterval < MinBillingInterval || s.BillingInterval > MaxBillingInterval {
		return fmt.Errorf("%w: billing interval must be between %d and %d (got %d)",
			ErrValidation, MinBillingInterval, MaxBillingInterval, s.BillingInterval)
	}
	if s.StartDate.IsZero() {
		return fmt.Errorf("%w: start date is required", ErrValidation)
	}
	if s.BillingCycleDay < 1 || s.BillingCycleDay > 31 {
		return fmt.Errorf("%w: billing cycle day must be between 1 and 31 (got %d)", ErrValidation, s.BillingCycleDay)
	}
	if s.EndDate != nil && s.EndDate.Before(s.StartDate) {
		return fmt.Errorf("%w: end date must not precede start date", ErrValidation)
	}
	if err := ValidateReminderIntervals(s.ReminderIntervals); err != nil {
		return err
	}
	return nil
}

// IsEnded reports whether the subscription is terminal at the given instant.
func (s *Subscription) IsEnded(now time.Time) bool {
	return s.EndDate != nil && !s.EndDate.After(now)
}
