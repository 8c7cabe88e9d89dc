package tracing

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/matchpay/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Span names for the payment routes.
const (
	WebhookSpanName = "payment.webhook.receive"
	ConfirmSpanName = "payment.confirm"
)

// GinMiddleware opens a server span per request. Routes listed in spanNames
// get that span name; other routes are named "HTTP <method> <route>".
func GinMiddleware(spanNames map[string]string) gin.HandlerFunc {
	tracer := otel.Tracer("matchpay/http")
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		name, ok := spanNames[route]
		if !ok {
			name = "HTTP " + strings.ToUpper(c.Request.Method) + " " + route
		}

		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, name,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", c.Request.Method),
				attribute.String("http.route", route),
			),
		)
		defer span.End()

		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			span.SetAttributes(attribute.String("request_id", requestID))
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		span.SetAttributes(SafeAttributes(paymentAttributes(c)...)...)

		if status >= http.StatusInternalServerError {
			if lastErr := c.Errors.Last(); lastErr != nil {
				if safeErr := SafeError(lastErr.Err); safeErr != nil {
					span.RecordError(safeErr)
				}
			}
			span.SetStatus(codes.Error, "request error")
		}
	}
}

func paymentAttributes(c *gin.Context) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if outcome := c.GetString(obscontext.GinWebhookOutcomeKey); outcome != "" {
		attrs = append(attrs, attribute.String("webhook.outcome", outcome))
	}
	if topic := c.GetString(obscontext.GinWebhookTopicKey); topic != "" {
		attrs = append(attrs, attribute.String("webhook.topic", topic))
	}
	if paymentID := c.GetString(obscontext.GinPaymentIDKey); paymentID != "" {
		attrs = append(attrs, attribute.String("payment.id", paymentID))
	}
	return attrs
}
