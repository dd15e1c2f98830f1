package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Payment is a logged charge against a subscription. The count of payments
// for a subscription is the authoritative "how many billing periods have
// elapsed" signal for the cycle calculator.
type Payment struct {
	ID             string          `gorm:"type:uuid;primaryKey"`
	SubscriptionID string          `gorm:"type:uuid;not null"`
	Amount         decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	Currency       string          `gorm:"type:varchar(3);not null"`
	PaymentDate    time.Time       `gorm:"type:date;not null"`
	PaymentMethod  *string         `gorm:"type:varchar(64)"`
	Notes          *string         `gorm:"type:text"`
	CreatedAt      time.Time
}

func (p *Payment) Validate(now time.Time) error {
	if strings.TrimSpace(p.SubscriptionID) == "" {
		return fmt.Errorf("%w: subscription id is required", ErrValidation)
	}
	if p.Amount.IsNegative() {
		return fmt.Errorf("%w: amount must not be negative", ErrValidation)
	}
	if strings.TrimSpace(p.Currency) == "" {
		return fmt.Errorf("%w: currency is required", ErrValidation)
	}
	if p.PaymentDate.IsZero() {
		return fmt.Errorf("%w: payment date is required", ErrValidation)
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if p.PaymentDate.After(today.AddDate(0, 0, 1).Add(-time.Nanosecond)) {
		return fmt.Errorf("%w: payment date must not be in the future", ErrValidation)
	}
	return nil
}
