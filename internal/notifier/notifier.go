package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/subtrack/billing-engine/internal/domain"
)

// Message is the reminder content handed to the send capability.
type Message struct {
	UserID         string
	SubscriptionID string
	Channel        domain.Channel
	Subscription   string
	Amount         decimal.Decimal
	Currency       string
	DueDate        time.Time
	DaysUntilDue   int
}

func (m Message) Validate() error {
	if strings.TrimSpace(m.UserID) == "" {
		return fmt.Errorf("user id is required: %w", domain.ErrValidation)
	}
	if strings.TrimSpace(m.SubscriptionID) == "" {
		return fmt.Errorf("subscription id is required: %w", domain.ErrValidation)
	}
	if !m.Channel.IsValid() {
		return fmt.Errorf("unknown channel %q: %w", string(m.Channel), domain.ErrValidation)
	}
	if m.DueDate.IsZero() {
		return fmt.Errorf("due date is required: %w", domain.ErrValidation)
	}
	if m.DaysUntilDue < 0 {
		return fmt.Errorf("days until due must not be negative: %w", domain.ErrValidation)
	}
	return nil
}

// Notifier is the outbound reminder delivery port. The engine owns the
// scheduling decisions; transports implement this.
type Notifier interface {
	Send(ctx context.Context, msg Message) (*SendResponse, error)
}

// SendResponse stores transport call metadata for audit and persistence.
type SendResponse struct {
	StatusCode int
	Body       string
	MessageID  string
}
