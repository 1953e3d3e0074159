package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// NotificationClient triggers the notification dispatcher
type NotificationClient struct {
	client *http.Client
	url    string
}

// NewNotificationClient creates a client posting to url
func NewNotificationClient(url string, timeout time.Duration) *NotificationClient {
	return &NotificationClient{
		client: &http.Client{Timeout: timeout},
		url:    url,
	}
}

// Notify asks the dispatcher to fan an alert out to its subscribers.
// The request carries an empty JSON object; any non-2xx response is an error.
func (c *NotificationClient) Notify(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBufferString("{}"))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d, body: %s", ErrUnexpectedStatus, resp.StatusCode, string(body))
	}
	return nil
}
