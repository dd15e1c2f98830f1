package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultWebhookTimeout = 10 * time.Second

type webhookRequest struct {
	UserID         string `json:"user_id"`
	SubscriptionID string `json:"subscription_id"`
	Channel        string `json:"channel"`
	Subscription   string `json:"subscription"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	DueDate        string `json:"due_date"`
	DaysUntilDue   int    `json:"days_until_due"`
}

// WebhookNotifier posts reminder messages to a webhook.site-compatible endpoint.
type WebhookNotifier struct {
	client   *resty.Client
	endpoint string
}

func NewWebhookNotifier(endpoint string) (*WebhookNotifier, error) {
	client := resty.New()
	client.SetTimeout(defaultWebhookTimeout)
	client.SetRetryCount(0)

	return NewWebhookNotifierWithClient(endpoint, client)
}

func NewWebhookNotifierWithClient(endpoint string, client *resty.Client) (*WebhookNotifier, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("webhook endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid webhook endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultWebhookTimeout)
	}
	client.SetRetryCount(0)

	return &WebhookNotifier{
		client:   client,
		endpoint: trimmedEndpoint,
	}, nil
}

func (n *WebhookNotifier) Send(ctx context.Context, msg Message) (*SendResponse, error) {
	if n == nil || n.client == nil {
		return nil, fmt.Errorf("notifier is not initialized")
	}
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}

	reqBody := webhookRequest{
		UserID:         msg.UserID,
		SubscriptionID: msg.SubscriptionID,
		Channel:        strings.ToLower(msg.Channel.String()),
		Subscription:   msg.Subscription,
		Amount:         msg.Amount.String(),
		Currency:       msg.Currency,
		DueDate:        msg.DueDate.Format("2006-01-02"),
		DaysUntilDue:   msg.DaysUntilDue,
	}

	response, err := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(reqBody).
		Post(n.endpoint)
	if err != nil {
		return nil, &SendError{
			Message:   "notifier request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return nil, &SendError{
			Message:   "notifier returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	responseBody := strings.TrimSpace(response.String())

	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return &SendResponse{
			StatusCode: statusCode,
			Body:       responseBody,
			MessageID:  webhookMessageID(response),
		}, nil
	}

	return nil, &SendError{
		StatusCode: statusCode,
		Message:    webhookErrorMessage(statusCode, responseBody),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func webhookErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("endpoint returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}

func webhookMessageID(response *resty.Response) string {
	if response == nil {
		return ""
	}

	for _, key := range []string{"X-Request-ID", "X-Request-Id", "X-Correlation-ID", "X-Correlation-Id"} {
		if value := strings.TrimSpace(response.Header().Get(key)); value != "" {
			return value
		}
	}

	return ""
}
