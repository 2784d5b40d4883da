// Package notify delivers one-way events to an external webhook. Delivery
// is fire-and-forget: failures are logged and never propagated to the
// write path that produced the event.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// EventType identifies the kind of notification.
type EventType string

const (
	EventOutcomeRecorded EventType = "outcome_recorded"
	EventProfileUpdated  EventType = "profile_updated"
)

// Event is the JSON payload posted to the webhook.
type Event struct {
	Type         EventType      `json:"type"`
	OwnerID      string         `json:"owner_id,omitempty"`
	SubmissionID string         `json:"submission_id,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// Notifier sends events one-way.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// Nop discards every event. Used when no webhook is configured.
type Nop struct{}

func (Nop) Notify(context.Context, Event) {}

// Webhook posts events as JSON, rate limited. Events over the rate are
// dropped, not queued.
type Webhook struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
}

// NewWebhook creates a Webhook notifier.
func NewWebhook(url string, eventsPerSec float64, timeout time.Duration) *Webhook {
	if eventsPerSec <= 0 {
		eventsPerSec = 5
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(eventsPerSec), int(eventsPerSec)+1),
	}
}

func (w *Webhook) Notify(ctx context.Context, ev Event) {
	log := zap.L().With(zap.String("event", string(ev.Type)), zap.String("owner_id", ev.OwnerID))

	if !w.limiter.Allow() {
		log.Debug("notify rate limited, dropping event")
		return
	}

	body, err := json.Marshal(ev)
	if err != nil {
		log.Warn("notify marshal failed", zap.Error(err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		log.Warn("notify request build failed", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		log.Warn("notify post failed", zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Warn("notify rejected", zap.Int("status", resp.StatusCode))
	}
}
