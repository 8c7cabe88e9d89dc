package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Event is one analytics record. Payer contact data never leaves the service.
type Event struct {
	EventID           string    `json:"eventId"`
	Name              string    `json:"name"`
	PaymentID         string    `json:"paymentId"`
	Status            string    `json:"status"`
	StatusDetail      string    `json:"statusDetail"`
	Amount            float64   `json:"amount"`
	Currency          string    `json:"currency"`
	PaymentMethodID   string    `json:"paymentMethodId"`
	PlanTier          string    `json:"planTier"`
	ExternalReference string    `json:"externalReference,omitempty"`
	Topic             string    `json:"topic"`
	RequestID         string    `json:"requestId,omitempty"`
	OccurredAt        time.Time `json:"occurredAt"`
}

type Sink interface {
	Emit(ctx context.Context, event Event) error
}

// LogSink writes events as structured log lines.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSink{log: log.Named("analytics.sink")}
}

func (s *LogSink) Emit(ctx context.Context, event Event) error {
	s.log.Info("analytics_event",
		zap.String("event_id", event.EventID),
		zap.String("name", event.Name),
		zap.String("payment_id", event.PaymentID),
		zap.String("status", event.Status),
		zap.Float64("amount", event.Amount),
		zap.String("currency", event.Currency),
		zap.String("plan_tier", event.PlanTier),
		zap.String("topic", event.Topic),
	)
	return nil
}

type NoopSink struct{}

func (NoopSink) Emit(context.Context, Event) error { return nil }

// HTTPSink posts each event as JSON to a collector endpoint.
type HTTPSink struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewHTTPSink(endpoint, apiKey string, timeout time.Duration) *HTTPSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPSink{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSink) Emit(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode analytics event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build analytics request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send analytics event: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("analytics collector returned status %d", resp.StatusCode)
	}
	return nil
}
