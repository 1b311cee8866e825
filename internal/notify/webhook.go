package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultWebhookTimeout bounds a single delivery attempt.
const DefaultWebhookTimeout = 10 * time.Second

// WakePayload is the JSON body posted to webhook endpoints.
type WakePayload struct {
	EventID     string    `json:"event_id"`
	Role        string    `json:"role"`
	TriggeredAt time.Time `json:"triggered_at"`
}

// Webhook posts wake-ups to an HTTP endpoint. Delivery happens on a
// background goroutine; failures are logged and not retried.
type Webhook struct {
	url     string
	client  *http.Client
	logger  *zap.Logger
	timeout time.Duration
	clock   func() time.Time
	wg      sync.WaitGroup
}

// WebhookOption customizes a Webhook.
type WebhookOption func(*Webhook)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(w *Webhook) {
		if c != nil {
			w.client = c
		}
	}
}

// WithWebhookLogger sets the logger used for delivery failures.
func WithWebhookLogger(l *zap.Logger) WebhookOption {
	return func(w *Webhook) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithTimeout bounds each delivery.
func WithTimeout(d time.Duration) WebhookOption {
	return func(w *Webhook) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// NewWebhook validates url and returns a webhook notifier.
func NewWebhook(url string, opts ...WebhookOption) (*Webhook, error) {
	url = strings.TrimSpace(url)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("notify: webhook url must be http(s), got %q", url)
	}
	w := &Webhook{
		url:     url,
		client:  http.DefaultClient,
		logger:  zap.NewNop(),
		timeout: DefaultWebhookTimeout,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Notify schedules delivery and returns immediately.
func (w *Webhook) Notify(role string) {
	payload := WakePayload{EventID: uuid.NewString(), Role: role, TriggeredAt: w.clock().UTC()}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.deliver(payload); err != nil {
			w.logger.Warn("webhook delivery failed", zap.String("role", role), zap.String("url", w.url), zap.Error(err))
		}
	}()
}

// Wait blocks until in-flight deliveries finish.
func (w *Webhook) Wait() {
	w.wg.Wait()
}

func (w *Webhook) deliver(payload WakePayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
