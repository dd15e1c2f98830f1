package repository

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/subtrack/billing-engine/internal/domain"
)

// SubscriptionModel is the persistence model for the subscriptions table.
type SubscriptionModel struct {
	ID       string          `gorm:"type:uuid;primaryKey"`
	UserID   string          `gorm:"type:uuid;not null"`
	Name     string          `gorm:"type:varchar(255);not null"`
	Amount   decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	Currency string          `gorm:"type:varchar(3);not null"`

	BillingCycle     domain.BillingCycle `gorm:"type:varchar(10);not null"`
	BillingInterval  int                 `gorm:"not null;default:1"`
	StartDate        time.Time           `gorm:"type:date;not null"`
	FirstBillingDate time.Time           `gorm:"type:date;not null"`
	BillingCycleDay  int                 `gorm:"not null"`
	EndDate          *time.Time          `gorm:"type:date"`

	UseDefaultNotifications bool  `gorm:"not null;default:true"`
	NotificationsEnabled    bool  `gorm:"not null;default:true"`
	EmailEnabled            bool  `gorm:"not null;default:true"`
	ReminderIntervals       []int `gorm:"type:jsonb;serializer:json"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (SubscriptionModel) TableName() string {
	return "subscriptions"
}

// PaymentModel is the persistence model for the payments table.
type PaymentModel struct {
	ID             string          `gorm:"type:uuid;primaryKey"`
	SubscriptionID string          `gorm:"type:uuid;not null"`
	Amount         decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	Currency       string          `gorm:"type:varchar(3);not null"`
	PaymentDate    time.Time       `gorm:"type:date;not null"`
	PaymentMethod  *string         `gorm:"type:varchar(64)"`
	Notes          *string         `gorm:"type:text"`
	CreatedAt      time.Time
}

func (PaymentModel) TableName() string {
	return "payments"
}

// PreferencesModel is the persistence model for notification_preferences.
type PreferencesModel struct {
	UserID               string `gorm:"type:uuid;primaryKey"`
	NotificationsEnabled bool   `gorm:"not null;default:true"`
	EmailEnabled         bool   `gorm:"not null;default:true"`
	ReminderIntervals    []int  `gorm:"type:jsonb;serializer:json"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (PreferencesModel) TableName() string {
	return "notification_preferences"
}

// DeliveryStateModel is the persistence model for reminder_delivery_states.
type DeliveryStateModel struct {
	ID             string                `gorm:"type:uuid;primaryKey"`
	SubscriptionID string                `gorm:"type:uuid;not null;uniqueIndex:idx_delivery_key,priority:1"`
	IntervalDays   int                   `gorm:"not null;uniqueIndex:idx_delivery_key,priority:2"`
	DueDate        time.Time             `gorm:"type:date;not null;uniqueIndex:idx_delivery_key,priority:3"`
	Status         domain.DeliveryStatus `gorm:"type:varchar(20);not null"`
	AttemptCount   int                   `gorm:"not null;default:0"`
	LastError      *string               `gorm:"type:text"`
	LastAttemptAt  time.Time             `gorm:"not null"`
	NextRetryAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (DeliveryStateModel) TableName() string {
	return "reminder_delivery_states"
}

func subscriptionModelFromDomain(s *domain.Subscription) *SubscriptionModel {
	if s == nil {
		return nil
	}
	return &SubscriptionModel{
		ID:                      s.ID,
		UserID:                  s.UserID,
		Name:                    s.Name,
		Amount:                  s.Amount,
		Currency:                s.Currency,
		BillingCycle:            s.BillingCycle,
		BillingInterval:         s.BillingInterval,
		StartDate:               s.StartDate,
		FirstBillingDate:        s.FirstBillingDate,
		BillingCycleDay:         s.BillingCycleDay,
		EndDate:                 s.EndDate,
		UseDefaultNotifications: s.UseDefaultNotifications,
		NotificationsEnabled:    s.NotificationsEnabled,
		EmailEnabled:            s.EmailEnabled,
		ReminderIntervals:       s.ReminderIntervals,
		CreatedAt:               s.CreatedAt,
		UpdatedAt:               s.UpdatedAt,
	}
}

func subscriptionModelToDomain(m *SubscriptionModel) *domain.Subscription {
	if m == nil {
		return nil
	}
	return &domain.Subscription{
		ID:                      m.ID,
		UserID:                  m.UserID,
		Name:                    m.Name,
		Amount:                  m.Amount,
		Currency:                m.Currency,
		BillingCycle:            m.BillingCycle,
		BillingInterval:         m.BillingInterval,
		StartDate:               m.StartDate,
		FirstBillingDate:        m.FirstBillingDate,
		BillingCycleDay:         m.BillingCycleDay,
		EndDate:                 m.EndDate,
		UseDefaultNotifications: m.UseDefaultNotifications,
		NotificationsEnabled:    m.NotificationsEnabled,
		EmailEnabled:            m.EmailEnabled,
		ReminderIntervals:       m.ReminderIntervals,
		CreatedAt:               m.CreatedAt,
		UpdatedAt:               m.UpdatedAt,
	}
}

func paymentModelFromDomain(p *domain.Payment) *PaymentModel {
	if p == nil {
		return nil
	}
	return &PaymentModel{
		ID:             p.ID,
		SubscriptionID: p.SubscriptionID,
		Amount:         p.Amount,
		Currency:       p.Currency,
		PaymentDate:    p.PaymentDate,
		PaymentMethod:  p.PaymentMethod,
		Notes:          p.Notes,
		CreatedAt:      p.CreatedAt,
	}
}

func paymentModelToDomain(m *PaymentModel) *domain.Payment {
	if m == nil {
		return nil
	}
	return &domain.Payment{
		ID:             m.ID,
		SubscriptionID: m.SubscriptionID,
		Amount:         m.Amount,
		Currency:       m.Currency,
		PaymentDate:    m.PaymentDate,
		PaymentMethod:  m.PaymentMethod,
		Notes:          m.Notes,
		CreatedAt:      m.CreatedAt,
	}
}

func preferencesModelFromDomain(p *domain.NotificationPreferences) *PreferencesModel {
	if p == nil {
		return nil
	}
	return &PreferencesModel{
		UserID:               p.UserID,
		NotificationsEnabled: p.NotificationsEnabled,
		EmailEnabled:         p.EmailEnabled,
		ReminderIntervals:    p.ReminderIntervals,
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
	}
}

func preferencesModelToDomain(m *PreferencesModel) *domain.NotificationPreferences {
	if m == nil {
		return nil
	}
	return &domain.NotificationPreferences{
		UserID:               m.UserID,
		NotificationsEnabled: m.NotificationsEnabled,
		EmailEnabled:         m.EmailEnabled,
		ReminderIntervals:    m.ReminderIntervals,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
}

func deliveryStateModelFromDomain(s *domain.DeliveryState) *DeliveryStateModel {
	if s == nil {
		return nil
	}
	return &DeliveryStateModel{
		ID:             s.ID,
		SubscriptionID: s.SubscriptionID,
		IntervalDays:   s.IntervalDays,
		DueDate:        s.DueDate,
		Status:         s.Status,
		AttemptCount:   s.AttemptCount,
		LastError:      s.LastError,
		LastAttemptAt:  s.LastAttemptAt,
		NextRetryAt:    s.NextRetryAt,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

func deliveryStateModelToDomain(m *DeliveryStateModel) *domain.DeliveryState {
	if m == nil {
		return nil
	}
	return &domain.DeliveryState{
		ID:             m.ID,
		SubscriptionID: m.SubscriptionID,
		IntervalDays:   m.IntervalDays,
		DueDate:        m.DueDate,
		Status:         m.Status,
		AttemptCount:   m.AttemptCount,
		LastError:      m.LastError,
		LastAttemptAt:  m.LastAttemptAt,
		NextRetryAt:    m.NextRetryAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}
