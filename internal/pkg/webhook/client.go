package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Event is the outcome payload delivered to the presentation layer.
type Event struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	RecipientID string                 `json:"recipient_id"`
	Title       string                 `json:"title"`
	Message     string                 `json:"message"`
	Data        map[string]interface{} `json:"data,omitempty"`
	OccurredAt  time.Time              `json:"occurred_at"`
}

// Client posts outcome events to a single configured endpoint.
type Client struct {
	httpClient *resty.Client
	url        string
}

// NewClient returns nil when url is empty so callers can treat the
// webhook as disabled.
func NewClient(url, token string, timeout time.Duration, retries int) *Client {
	if url == "" {
		return nil
	}

	httpClient := resty.New().
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(500 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})
	if token != "" {
		httpClient.SetAuthToken(token)
	}

	return &Client{httpClient: httpClient, url: url}
}

// Send delivers a batch of events in one request.
func (c *Client) Send(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{"events": events}).
		Post(c.url)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("send webhook: unexpected status %d", resp.StatusCode())
	}
	return nil
}
