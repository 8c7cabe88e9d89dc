package webhook

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/smallbiznis/matchpay/internal/observability/logger"
	"github.com/smallbiznis/matchpay/internal/payment/domain"
	"go.uber.org/zap"
)

// Event is what a topic handler receives after the signature check.
type Event struct {
	Topic      string
	RawBody    []byte
	Resolution PaymentIDResolution
	RequestID  string
}

// TopicHandler processes one webhook topic. A nil error means the delivery
// is acknowledged with 200.
type TopicHandler interface {
	Handle(ctx context.Context, event Event) (Outcome, error)
}

type TopicHandlerFunc func(ctx context.Context, event Event) (Outcome, error)

func (f TopicHandlerFunc) Handle(ctx context.Context, event Event) (Outcome, error) {
	return f(ctx, event)
}

// Registry maps topics to handlers. Topics without a handler go to the
// fallback, which acknowledges without side effects.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]TopicHandler
	fallback TopicHandler
}

func NewRegistry(fallback TopicHandler) *Registry {
	return &Registry{
		handlers: map[string]TopicHandler{},
		fallback: fallback,
	}
}

func (r *Registry) Register(handler TopicHandler, topics ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, topic := range topics {
		r.handlers[normalizeTopic(topic)] = handler
	}
}

func (r *Registry) Lookup(topic string) TopicHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if handler, ok := r.handlers[normalizeTopic(topic)]; ok {
		return handler
	}
	return r.fallback
}

// Topics lists registered topics in sorted order.
func (r *Registry) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for topic := range r.handlers {
		out = append(out, topic)
	}
	sort.Strings(out)
	return out
}

// NewAcknowledgeHandler logs the event and acknowledges it untouched.
func NewAcknowledgeHandler(log *zap.Logger) TopicHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return TopicHandlerFunc(func(ctx context.Context, event Event) (Outcome, error) {
		logger.WithContext(ctx, log).Info("webhook topic not processed, acknowledging",
			zap.String("topic", event.Topic),
			zap.String("payment_id", PaymentIDOf(event.Resolution)),
		)
		return OutcomeIgnoredTopic, nil
	})
}

func normalizeTopic(topic string) string {
	return strings.ToLower(strings.TrimSpace(topic))
}

// NewDefaultRegistry routes payment topics to the payment handler and
// acknowledges merchant_order and anything unknown.
func NewDefaultRegistry(payments *PaymentHandler, log *zap.Logger) *Registry {
	ack := NewAcknowledgeHandler(log)
	registry := NewRegistry(ack)
	registry.Register(payments, domain.TopicPayment, domain.TopicPayments)
	registry.Register(ack, domain.TopicMerchantOrder)
	return registry
}
