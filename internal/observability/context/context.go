package context

import (
	stdcontext "context"
	"strings"
)

type contextKey string

const (
	requestIDKey         contextKey = "request_id"
	providerRequestIDKey contextKey = "provider_request_id"
	webhookTopicKey      contextKey = "webhook_topic"
)

// Gin keys the payment handlers set for the access log and the request span.
const (
	GinWebhookOutcomeKey = "webhook_outcome"
	GinWebhookTopicKey   = "webhook_topic"
	GinPaymentIDKey      = "payment_id"
)

// WithRequestID stores the generated correlation id for the request.
func WithRequestID(ctx stdcontext.Context, requestID string) stdcontext.Context {
	if ctx == nil {
		ctx = stdcontext.Background()
	}
	return stdcontext.WithValue(ctx, requestIDKey, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx stdcontext.Context) string {
	return stringValue(ctx, requestIDKey)
}

// WithProviderRequestID stores the x-request-id sent by the payment provider.
// It is kept apart from the correlation id because it takes part in signing.
func WithProviderRequestID(ctx stdcontext.Context, requestID string) stdcontext.Context {
	if ctx == nil {
		ctx = stdcontext.Background()
	}
	return stdcontext.WithValue(ctx, providerRequestIDKey, strings.TrimSpace(requestID))
}

func ProviderRequestIDFromContext(ctx stdcontext.Context) string {
	return stringValue(ctx, providerRequestIDKey)
}

// WithWebhookTopic records the classified topic of the delivery being handled.
func WithWebhookTopic(ctx stdcontext.Context, topic string) stdcontext.Context {
	if ctx == nil {
		ctx = stdcontext.Background()
	}
	return stdcontext.WithValue(ctx, webhookTopicKey, strings.TrimSpace(topic))
}

func WebhookTopicFromContext(ctx stdcontext.Context) string {
	return stringValue(ctx, webhookTopicKey)
}

func stringValue(ctx stdcontext.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if value, ok := ctx.Value(key).(string); ok {
		return value
	}
	return ""
}
