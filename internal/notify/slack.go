package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Slack posts to an incoming webhook. The destination is the webhook URL.
type Slack struct {
	Client *http.Client
}

func NewSlack(timeout time.Duration) *Slack {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Slack{Client: &http.Client{Timeout: timeout}}
}

type slackPayload struct {
	Text string `json:"text"`
}

func (s *Slack) Send(ctx context.Context, webhook string, msg Message) error {
	if err := s.ValidateDestination(ctx, webhook); err != nil {
		return err
	}
	body, _ := json.Marshal(slackPayload{Text: "*" + msg.Title + "*\n" + msg.Text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("slack send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("slack non-2xx: %d", resp.StatusCode)
	}
	return nil
}

// ValidateDestination only checks the URL shape; posting a probe message
// to a webhook would be visible to the channel.
func (s *Slack) ValidateDestination(ctx context.Context, webhook string) error {
	u, err := url.Parse(webhook)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("%w: %q is not a webhook url", ErrInvalidDestination, webhook)
	}
	return nil
}
