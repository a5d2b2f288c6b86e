package notifiers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/daniacca/epicell/internal/epi"
)

// Headers identifying the cycle, so receivers can route and de-duplicate
// retried deliveries without parsing the body.
const (
	HeaderGridID = "X-Epicell-Grid"
	HeaderCycle  = "X-Epicell-Cycle"
)

const defaultWebhookTimeout = 5 * time.Second

// WebhookNotifier POSTs every cycle event as JSON to a URL.
type WebhookNotifier struct {
	id      string
	target  string
	client  *http.Client
	headers http.Header
}

func NewWebhookNotifier(id, target string) *WebhookNotifier {
	return &WebhookNotifier{
		id:      id,
		target:  target,
		client:  &http.Client{Timeout: defaultWebhookTimeout},
		headers: make(http.Header),
	}
}

// SetHeader adds a header sent with every request. The cycle headers cannot
// be overridden.
func (wn *WebhookNotifier) SetHeader(key, value string) {
	wn.headers.Set(key, value)
}

// SetTimeout bounds each delivery attempt.
func (wn *WebhookNotifier) SetTimeout(d time.Duration) {
	wn.client.Timeout = d
}

func (wn *WebhookNotifier) ID() string   { return wn.id }
func (wn *WebhookNotifier) Type() string { return "webhook" }

// Notify posts the event; any non-2xx status is an error.
func (wn *WebhookNotifier) Notify(ctx context.Context, event epi.CycleEvent) error {
	body, err := event.JSON()
	if err != nil {
		return fmt.Errorf("encode cycle %d: %w", event.Time, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wn.target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header = wn.headers.Clone()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderGridID, string(event.GridID))
	req.Header.Set(HeaderCycle, strconv.FormatInt(event.Time, 10))

	resp, err := wn.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver cycle %d to %s: %w", event.Time, wn.id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s returned status %d for cycle %d", wn.id, resp.StatusCode, event.Time)
	}
	return nil
}

// Close is a no-op; the HTTP client holds no per-notifier resources.
func (wn *WebhookNotifier) Close() error {
	return nil
}
