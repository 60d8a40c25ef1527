// Package companion notifies the wearer's companion app, which plays text
// back aloud.
package companion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Playback actions.
const (
	ActionFiller = "filler"
	ActionSpeak  = "speak"
)

// Action is the webhook payload.
type Action struct {
	Action string `json:"action"`
	Text   string `json:"text"`
	UserID string `json:"userId"`
}

// Sender is what sessions need from the playback channel.
type Sender interface {
	Dispatch(a Action)
}

// Notifier posts actions to a webhook. A zero URL disables it.
type Notifier struct {
	URL        string
	HTTPClient *http.Client
	Timeout    time.Duration
}

var _ Sender = (*Notifier)(nil)

// NewNotifier returns a notifier for url.
func NewNotifier(url string) *Notifier {
	return &Notifier{
		URL:        url,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Timeout:    5 * time.Second,
	}
}

// Notify posts a and waits for the response.
func (n *Notifier) Notify(ctx context.Context, a Action) error {
	if n.URL == "" {
		return nil
	}
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("companion: encode action: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("companion: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("companion: post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("companion: status=%d", resp.StatusCode)
	}
	return nil
}

// Dispatch sends a in the background. Failures are logged, never retried.
func (n *Notifier) Dispatch(a Action) {
	if n.URL == "" {
		log.Printf("[%s] companion webhook not configured, dropping %s", a.UserID, a.Action)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.Timeout)
		defer cancel()
		if err := n.Notify(ctx, a); err != nil {
			log.Printf("[%s] companion %s failed: %v", a.UserID, a.Action, err)
		}
	}()
}
