package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/subtrack/billing-engine/internal/domain"
	"github.com/subtrack/billing-engine/internal/service"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100

	dateLayout = "2006-01-02"
)

type SubscriptionService interface {
	Create(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error)
	GetByID(ctx context.Context, id string) (*domain.Subscription, error)
	List(ctx context.Context, userID string, page, pageSize int) ([]domain.Subscription, int64, error)
	End(ctx context.Context, id string, endDate time.Time) error
	GetStatus(ctx context.Context, id string) (*service.StatusView, error)
	GetNotificationSettings(ctx context.Context, id string) (*domain.NotificationSettings, error)
	LogPayment(ctx context.Context, payment *domain.Payment) (*domain.Payment, error)
	ListPayments(ctx context.Context, subscriptionID string) ([]domain.Payment, error)
	DeleteLatestPayment(ctx context.Context, subscriptionID string) error
	GetPreferences(ctx context.Context, userID string) (*domain.NotificationPreferences, error)
	SavePreferences(ctx context.Context, prefs *domain.NotificationPreferences) (*domain.NotificationPreferences, error)
}

type Dispatcher interface {
	Run(ctx context.Context) (*service.DispatchResult, error)
}

type SubscriptionHandler struct {
	service    SubscriptionService
	dispatcher Dispatcher
}

func NewSubscriptionHandler(svc SubscriptionService, dispatcher Dispatcher) (*SubscriptionHandler, error) {
	if svc == nil {
		return nil, fmt.Errorf("subscription service is required")
	}
	return &SubscriptionHandler{service: svc, dispatcher: dispatcher}, nil
}

func RegisterSubscriptionRoutes(router fiber.Router, svc SubscriptionService, dispatcher Dispatcher) error {
	h, err := NewSubscriptionHandler(svc, dispatcher)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/subscriptions", h.CreateSubscription)
	v1.Get("/subscriptions", h.ListSubscriptions)
	v1.Get("/subscriptions/:id", h.GetSubscription)
	v1.Post("/subscriptions/:id/end", h.EndSubscription)
	v1.Get("/subscriptions/:id/status", h.GetSubscriptionStatus)
	v1.Get("/subscriptions/:id/notification-settings", h.GetNotificationSettings)
	v1.Post("/subscriptions/:id/payments", h.LogPayment)
	v1.Get("/subscriptions/:id/payments", h.ListPayments)
	v1.Delete("/subscriptions/:id/payments/latest", h.DeleteLatestPayment)
	v1.Get("/users/:userId/preferences", h.GetPreferences)
	v1.Put("/users/:userId/preferences", h.SavePreferences)
	if dispatcher != nil {
		v1.Post("/dispatch/run", h.RunDispatch)
	}

	return nil
}

type createSubscriptionRequest struct {
	UserID                  string  `json:"userId"`
	Name                    string  `json:"name"`
	Amount                  string  `json:"amount"`
	Currency                string  `json:"currency"`
	BillingCycle            string  `json:"billingCycle"`
	BillingInterval         int     `json:"billingInterval"`
	StartDate               string  `json:"startDate"`
	FirstBillingDate        string  `json:"firstBillingDate"`
	EndDate                 *string `json:"endDate"`
	UseDefaultNotifications *bool   `json:"useDefaultNotifications"`
	NotificationsEnabled    *bool   `json:"notificationsEnabled"`
	EmailEnabled            *bool   `json:"emailEnabled"`
	ReminderIntervals       []int   `json:"reminderIntervals"`
}

type subscriptionResponse struct {
	ID                      string  `json:"id"`
	UserID                  string  `json:"userId"`
	Name                    string  `json:"name"`
	Amount                  string  `json:"amount"`
	Currency                string  `json:"currency"`
	BillingCycle            string  `json:"billingCycle"`
	BillingInterval         int     `json:"billingInterval"`
	StartDate               string  `json:"startDate"`
	FirstBillingDate        string  `json:"firstBillingDate"`
	BillingCycleDay         int     `json:"billingCycleDay"`
	EndDate                 *string `json:"endDate,omitempty"`
	UseDefaultNotifications bool    `json:"useDefaultNotifications"`
	NotificationsEnabled    bool    `json:"notificationsEnabled"`
	EmailEnabled            bool    `json:"emailEnabled"`
	ReminderIntervals       []int   `json:"reminderIntervals,omitempty"`
}

type statusResponse struct {
	SubscriptionID  string  `json:"subscriptionId"`
	Status          string  `json:"status"`
	IsOverdue       bool    `json:"isOverdue"`
	NextBillingDate *string `json:"nextBillingDate"`
	PaymentCount    int     `json:"paymentCount"`
}

type notificationSettingsResponse struct {
	Enabled           bool  `json:"enabled"`
	EmailEnabled      bool  `json:"emailEnabled"`
	ReminderIntervals []int `json:"reminderIntervals"`
}

type logPaymentRequest struct {
	Amount        string  `json:"amount"`
	Currency      string  `json:"currency"`
	PaymentDate   string  `json:"paymentDate"`
	PaymentMethod *string `json:"paymentMethod"`
	Notes         *string `json:"notes"`
}

type paymentResponse struct {
	ID             string  `json:"id"`
	SubscriptionID string  `json:"subscriptionId"`
	Amount         string  `json:"amount"`
	Currency       string  `json:"currency"`
	PaymentDate    string  `json:"paymentDate"`
	PaymentMethod  *string `json:"paymentMethod,omitempty"`
	Notes          *string `json:"notes,omitempty"`
}

type preferencesRequest struct {
	NotificationsEnabled *bool `json:"notificationsEnabled"`
	EmailEnabled         *bool `json:"emailEnabled"`
	ReminderIntervals    []int `json:"reminderIntervals"`
}

type preferencesResponse struct {
	UserID               string `json:"userId"`
	NotificationsEnabled bool   `json:"notificationsEnabled"`
	EmailEnabled         bool   `json:"emailEnabled"`
	ReminderIntervals    []int  `json:"reminderIntervals"`
}

type endSubscriptionRequest struct {
	EndDate string `json:"endDate"`
}

type listSubscriptionsResponse struct {
	Data []subscriptionResponse `json:"data"`
	Meta listMeta               `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

func (h *SubscriptionHandler) CreateSubscription(c *fiber.Ctx) error {
	var req createSubscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	sub, err := requestToDomainSubscription(req)
	if err != nil {
		return toHTTPError(err)
	}

	created, err := h.service.Create(c.Context(), sub)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toSubscriptionResponse(created))
}

func (h *SubscriptionHandler) GetSubscription(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	sub, err := h.service.GetByID(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toSubscriptionResponse(sub))
}

func (h *SubscriptionHandler) ListSubscriptions(c *fiber.Ctx) error {
	userID := strings.TrimSpace(c.Query("userId"))
	if userID == "" {
		return toHTTPError(fmt.Errorf("%w: userId query parameter is required", domain.ErrValidation))
	}

	page := c.QueryInt("page", defaultPage)
	pageSize := c.QueryInt("pageSize", defaultPageSize)
	if page < 1 {
		return toHTTPError(fmt.Errorf("%w: page must be >= 1", domain.ErrValidation))
	}
	if pageSize < 1 || pageSize > maxPageSize {
		return toHTTPError(fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize))
	}

	subs, total, err := h.service.List(c.Context(), userID, page, pageSize)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]subscriptionResponse, 0, len(subs))
	for i := range subs {
		data = append(data, toSubscriptionResponse(&subs[i]))
	}

	return c.Status(fiber.StatusOK).JSON(listSubscriptionsResponse{
		Data: data,
		Meta: listMeta{Page: page, PageSize: pageSize, Total: total},
	})
}

func (h *SubscriptionHandler) EndSubscription(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))

	var req endSubscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	endDate, err := parseDateField(req.EndDate, "endDate")
	if err != nil {
		return toHTTPError(err)
	}

	if err := h.service.End(c.Context(), id, *endDate); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"subscriptionId": id,
		"endDate":        endDate.Format(dateLayout),
	})
}

func (h *SubscriptionHandler) GetSubscriptionStatus(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	view, err := h.service.GetStatus(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	resp := statusResponse{
		SubscriptionID: view.SubscriptionID,
		Status:         view.Status.String(),
		IsOverdue:      view.Overdue,
		PaymentCount:   view.PaymentCount,
	}
	if view.NextBillingDate != nil {
		formatted := view.NextBillingDate.Format(dateLayout)
		resp.NextBillingDate = &formatted
	}

	return c.Status(fiber.StatusOK).JSON(resp)
}

func (h *SubscriptionHandler) GetNotificationSettings(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	settings, err := h.service.GetNotificationSettings(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(notificationSettingsResponse{
		Enabled:           settings.Enabled,
		EmailEnabled:      settings.EmailEnabled,
		ReminderIntervals: settings.ReminderIntervals,
	})
}

func (h *SubscriptionHandler) LogPayment(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))

	var req logPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	amount, err := parseAmountField(req.Amount)
	if err != nil {
		return toHTTPError(err)
	}
	paymentDate, err := parseDateField(req.PaymentDate, "paymentDate")
	if err != nil {
		return toHTTPError(err)
	}

	payment := &domain.Payment{
		SubscriptionID: id,
		Amount:         amount,
		Currency:       strings.TrimSpace(req.Currency),
		PaymentDate:    *paymentDate,
		PaymentMethod:  req.PaymentMethod,
		Notes:          req.Notes,
	}

	created, err := h.service.LogPayment(c.Context(), payment)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toPaymentResponse(created))
}

func (h *SubscriptionHandler) ListPayments(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	payments, err := h.service.ListPayments(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]paymentResponse, 0, len(payments))
	for i := range payments {
		data = append(data, toPaymentResponse(&payments[i]))
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": data})
}

func (h *SubscriptionHandler) DeleteLatestPayment(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.service.DeleteLatestPayment(c.Context(), id); err != nil {
		return toHTTPError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *SubscriptionHandler) GetPreferences(c *fiber.Ctx) error {
	userID := strings.TrimSpace(c.Params("userId"))
	prefs, err := h.service.GetPreferences(c.Context(), userID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toPreferencesResponse(prefs))
}

func (h *SubscriptionHandler) SavePreferences(c *fiber.Ctx) error {
	userID := strings.TrimSpace(c.Params("userId"))

	var req preferencesRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	prefs := &domain.NotificationPreferences{
		UserID:               userID,
		NotificationsEnabled: true,
		EmailEnabled:         true,
		ReminderIntervals:    req.ReminderIntervals,
	}
	if req.NotificationsEnabled != nil {
		prefs.NotificationsEnabled = *req.NotificationsEnabled
	}
	if req.EmailEnabled != nil {
		prefs.EmailEnabled = *req.EmailEnabled
	}

	saved, err := h.service.SavePreferences(c.Context(), prefs)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toPreferencesResponse(saved))
}

func (h *SubscriptionHandler) RunDispatch(c *fiber.Ctx) error {
	result, err := h.dispatcher.Run(c.Context())
	if err != nil {
		return err
	}

	status := fiber.StatusOK
	if result.Skipped {
		status = fiber.StatusConflict
	}
	return c.Status(status).JSON(result)
}

func requestToDomainSubscription(req createSubscriptionRequest) (*domain.Subscription, error) {
	cycle, err := domain.ParseBillingCycleFromString(req.BillingCycle)
	if err != nil {
		return nil, err
	}

	amount, err := parseAmountField(req.Amount)
	if err != nil {
		return nil, err
	}

	startDate, err := parseDateField(req.StartDate, "startDate")
	if err != nil {
		return nil, err
	}

	sub := &domain.Subscription{
		UserID:                  strings.TrimSpace(req.UserID),
		Name:                    req.Name,
		Amount:                  amount,
		Currency:                req.Currency,
		BillingCycle:            cycle,
		BillingInterval:         req.BillingInterval,
		StartDate:               *startDate,
		UseDefaultNotifications: true,
		NotificationsEnabled:    true,
		EmailEnabled:            true,
		ReminderIntervals:       req.ReminderIntervals,
	}

	if req.FirstBillingDate != "" {
		first, err := parseDateField(req.FirstBillingDate, "firstBillingDate")
		if err != nil {
			return nil, err
		}
		sub.FirstBillingDate = *first
	}
	if req.EndDate != nil && strings.TrimSpace(*req.EndDate) != "" {
		end, err := parseDateField(*req.EndDate, "endDate")
		if err != nil {
			return nil, err
		}
		sub.EndDate = end
	}
	if req.UseDefaultNotifications != nil {
		sub.UseDefaultNotifications = *req.UseDefaultNotifications
	}
	if req.NotificationsEnabled != nil {
		sub.NotificationsEnabled = *req.NotificationsEnabled
	}
	if req.EmailEnabled != nil {
		sub.EmailEnabled = *req.EmailEnabled
	}

	return sub, nil
}

func parseAmountField(value string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return decimal.Zero, fmt.Errorf("%w: amount is required", domain.ErrValidation)
	}
	amount, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: amount must be a decimal number", domain.ErrValidation)
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: amount must not be negative", domain.ErrValidation)
	}
	return amount, nil
}

func parseDateField(value string, field string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: %s is required", domain.ErrValidation, field)
	}
	t, err := time.Parse(dateLayout, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be YYYY-MM-DD", domain.ErrValidation, field)
	}
	t = t.UTC()
	return &t, nil
}

func toSubscriptionResponse(s *domain.Subscription) subscriptionResponse {
	if s == nil {
		return subscriptionResponse{}
	}

	resp := subscriptionResponse{
		ID:                      s.ID,
		UserID:                  s.UserID,
		Name:                    s.Name,
		Amount:                  s.Amount.String(),
		Currency:                s.Currency,
		BillingCycle:            s.BillingCycle.String(),
		BillingInterval:         s.BillingInterval,
		StartDate:               s.StartDate.Format(dateLayout),
		FirstBillingDate:        s.FirstBillingDate.Format(dateLayout),
		BillingCycleDay:         s.BillingCycleDay,
		UseDefaultNotifications: s.UseDefaultNotifications,
		NotificationsEnabled:    s.NotificationsEnabled,
		EmailEnabled:            s.EmailEnabled,
		ReminderIntervals:       s.ReminderIntervals,
	}
	if s.EndDate != nil {
		formatted := s.EndDate.Format(dateLayout)
		resp.EndDate = &formatted
	}
	return resp
}

func toPaymentResponse(p *domain.Payment) paymentResponse {
	if p == nil {
		return paymentResponse{}
	}
	return paymentResponse{
		ID:             p.ID,
		SubscriptionID: p.SubscriptionID,
		Amount:         p.Amount.String(),
		Currency:       p.Currency,
		PaymentDate:    p.PaymentDate.Format(dateLayout),
		PaymentMethod:  p.PaymentMethod,
		Notes:          p.Notes,
	}
}

func toPreferencesResponse(p *domain.NotificationPreferences) preferencesResponse {
	if p == nil {
		return preferencesResponse{}
	}
	return preferencesResponse{
		UserID:               p.UserID,
		NotificationsEnabled: p.NotificationsEnabled,
		EmailEnabled:         p.EmailEnabled,
		ReminderIntervals:    p.ReminderIntervals,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
