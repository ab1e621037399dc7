package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/LeonardoBeccarini/flood_monitor/internal/model/messages"
)

// WebhookNotifier POSTs events to an HTTP endpoint behind a circuit breaker,
// so an unreachable receiver does not stall the sensor feed.
type WebhookNotifier struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewWebhookNotifier trips after `failures` consecutive errors and stays open for openFor.
func NewWebhookNotifier(url string, timeout time.Duration, failures int, openFor time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if failures < 1 {
		failures = 1
	}
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	return &WebhookNotifier{
		url:    strings.TrimSpace(url),
		client: &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "alert-webhook",
			Timeout: openFor,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= uint32(failures)
			},
		}),
	}
}

// State exposes the breaker state for logs and tests.
func (n *WebhookNotifier) State() gobreaker.State { return n.breaker.State() }

func (n *WebhookNotifier) Notify(ctx context.Context, evt messages.FloodAlertEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	_, err = n.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := n.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("webhook status %d", resp.StatusCode)
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("webhook notify: %w", err)
	}
	return nil
}
