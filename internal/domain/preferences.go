package domain

import (
	"fmt"
	"strings"
	"time"
)

// Channel represents the delivery channel for a reminder.
type Channel string

const (
	ChannelEmail   Channel = "EMAIL"
	ChannelWebhook Channel = "WEBHOOK"
)

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelWebhook:
		return true
	}
	return false
}

func ParseChannelFromString(s string) (Channel, error) {
	ch := Channel(strings.ToUpper(strings.TrimSpace(s)))
	if !ch.IsValid() {
		return "", fmt.Errorf("%w: invalid channel %q", ErrValidation, s)
	}
	return ch, nil
}

// AllowedReminderIntervals are the supported days-before-due offsets.
var AllowedReminderIntervals = []int{1, 2, 3, 7, 15, 30}

// DefaultReminderIntervals is applied when a user has no stored preferences.
var DefaultReminderIntervals = []int{1, 7}

func IsAllowedReminderInterval(days int) bool {
	for _, allowed := range AllowedReminderIntervals {
		if days == allowed {
			return true
		}
	}
	return false
}

func ValidateReminderIntervals(intervals []int) error {
	seen := make(map[int]struct{}, len(intervals))
	for _, days := range intervals {
		if !IsAllowedReminderInterval(days) {
			return fmt.Errorf("%w: unsupported reminder interval %d", ErrValidation, days)
		}
		if _, dup := seen[days]; dup {
			return fmt.Errorf("%w: duplicate reminder interval %d", ErrValidation, days)
		}
		seen[days] = struct{}{}
	}
	return nil
}

// NotificationPreferences are a user's defaults, applied to every
// subscription that has UseDefaultNotifications set.
type NotificationPreferences struct {
	UserID               string `gorm:"type:uuid;primaryKey"`
	NotificationsEnabled bool   `gorm:"not null;default:true"`
	EmailEnabled         bool   `gorm:"not null;default:true"`
	ReminderIntervals    []int  `gorm:"type:jsonb;serializer:json"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (p *NotificationPreferences) Validate() error {
	if strings.TrimSpace(p.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	return ValidateReminderIntervals(p.ReminderIntervals)
}

// NotificationSettings is the resolved configuration actually applied to a
// subscription: either its own overrides or the owner's defaults.
type NotificationSettings struct {
	Enabled           bool
	EmailEnabled      bool
	ReminderIntervals []int
}
