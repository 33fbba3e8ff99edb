package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// HTTPProvider posts messages to the external notification service, which
// owns PUSH, SMS and EMAIL delivery.
type HTTPProvider struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

func NewHTTPProvider(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *HTTPProvider {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetHeader("X-API-Key", apiKey)
	}

	return &HTTPProvider{
		httpClient: client,
		logger:     logger,
	}
}

func (p *HTTPProvider) Send(ctx context.Context, msg Message) error {
	resp, err := p.httpClient.R().
		SetContext(ctx).
		SetBody(msg).
		Post("/notifications")
	if err != nil {
		return fmt.Errorf("failed to call notification service: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("notification service returned %d", resp.StatusCode())
	}

	p.logger.Debug("Notification accepted",
		zap.String("channel", string(msg.Channel)),
		zap.String("user_id", msg.UserID),
	)
	return nil
}
