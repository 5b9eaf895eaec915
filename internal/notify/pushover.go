// Package notify holds the outbound notification adapters: a
// push-message client and an attachment-email client. Both are
// best-effort, single-attempt calls built on the shared httpkit client.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cerealworks/cereal/internal/httpkit"
)

const pushoverMessagesURL = "https://api.pushover.net/1/messages.json"

// PushClient sends push notifications through the Pushover-style
// messages API. Failures are not retried — the caller (delivery
// scheduler) decides whether to retry on the next tick.
type PushClient struct {
	appToken string
	http     *http.Client
	url      string
}

// NewPushClient creates a PushClient authenticated with appToken.
func NewPushClient(appToken string) *PushClient {
	return &PushClient{
		appToken: appToken,
		http:     httpkit.NewClient(httpkit.WithTimeout(15 * time.Second)),
		url:      pushoverMessagesURL,
	}
}

type pushoverRequest struct {
	Token   string `json:"token"`
	User    string `json:"user"`
	Message string `json:"message"`
}

// Send posts a single push message to userKey. Any non-2xx response is
// returned as an error carrying the status code and response body.
func (c *PushClient) Send(ctx context.Context, userKey, message string) error {
	body, err := json.Marshal(pushoverRequest{
		Token:   c.appToken,
		User:    userKey,
		Message: message,
	})
	if err != nil {
		return fmt.Errorf("notify: marshal pushover request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build pushover request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("notify: pushover request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		return fmt.Errorf("notify: pushover returned %d: %s", resp.StatusCode, errBody)
	}
	httpkit.DrainAndClose(resp.Body, 1<<16)

	return nil
}
