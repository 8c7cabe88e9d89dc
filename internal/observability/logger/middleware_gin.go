package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/matchpay/internal/observability/context"
	"github.com/smallbiznis/matchpay/pkg/telemetry/correlation"
	"go.uber.org/zap"
)

const (
	// RequestIDKey is the gin context key holding the generated correlation id.
	RequestIDKey = "request_id"

	// CorrelationHeader carries the generated correlation id back to the caller.
	CorrelationHeader = "X-Correlation-Id"

	providerRequestIDHeader = "X-Request-Id"
)

// MiddlewareConfig controls request logging behavior.
type MiddlewareConfig struct {
	Debug           bool
	ErrorClassifier func(err error) (string, string)
}

// GinMiddleware logs each request with correlation identifiers and safe fields.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := ensureRequestID(c)

		ctx := c.Request.Context()
		ctx = obscontext.WithRequestID(ctx, requestID)
		ctx = correlation.ContextWithCorrelationID(ctx, requestID)
		if providerRequestID := strings.TrimSpace(c.GetHeader(providerRequestIDHeader)); providerRequestID != "" {
			ctx = obscontext.WithProviderRequestID(ctx, providerRequestID)
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if strings.TrimSpace(route) == "" {
			route = "unknown"
		}
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", route),
			zap.Int("status", status),
			zap.String("client_ip", c.ClientIP()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.Int64("bytes_in", normalizeBytes(c.Request.ContentLength)),
			zap.Int("bytes_out", normalizeSize(c.Writer.Size())),
		}

		fields = append(fields, paymentFields(c)...)

		var errorType, errorCode string
		if lastErr := c.Errors.Last(); lastErr != nil {
			if cfg.ErrorClassifier != nil {
				errorType, errorCode = cfg.ErrorClassifier(lastErr.Err)
			}
			fields = append(fields,
				zap.String("error_type", errorType),
				zap.String("error_code", errorCode),
			)
			if cfg.Debug {
				fields = append(fields, zap.Stack("stack"))
			}
		}

		log := FromContext(c.Request.Context())
		logRequest(log, route, status, fields)
	}
}

// paymentFields copies what the payment handlers recorded on the gin
// context, so one access line shows how a delivery ended.
func paymentFields(c *gin.Context) []zap.Field {
	var fields []zap.Field
	for _, key := range []string{
		obscontext.GinWebhookOutcomeKey,
		obscontext.GinWebhookTopicKey,
		obscontext.GinPaymentIDKey,
	} {
		if value := strings.TrimSpace(c.GetString(key)); value != "" {
			fields = append(fields, zap.String(key, value))
		}
	}
	return fields
}

// RequestID returns the correlation id assigned to the request.
func RequestID(c *gin.Context) string {
	if c == nil {
		return ""
	}
	if requestID := strings.TrimSpace(c.GetString(RequestIDKey)); requestID != "" {
		return requestID
	}
	return ensureRequestID(c)
}

// ensureRequestID always generates the id server side. The inbound
// X-Request-Id belongs to the payment provider and is part of the signed
// template, so it is never reused as the correlation id.
func ensureRequestID(c *gin.Context) string {
	requestID := strings.TrimSpace(c.GetString(RequestIDKey))
	if requestID == "" {
		requestID = correlation.NewID()
	}

	c.Set(RequestIDKey, requestID)
	c.Header(CorrelationHeader, requestID)
	return requestID
}

func logRequest(log *zap.Logger, route string, status int, fields []zap.Field) {
	if log == nil {
		return
	}

	level := zap.InfoLevel
	if status >= http.StatusInternalServerError {
		level = zap.ErrorLevel
	}
	if isHealthRoute(route) {
		level = zap.DebugLevel
	}

	switch level {
	case zap.DebugLevel:
		log.Debug("http_request", fields...)
	case zap.ErrorLevel:
		log.Error("http_request", fields...)
	default:
		log.Info("http_request", fields...)
	}
}

func isHealthRoute(route string) bool {
	route = strings.TrimSpace(route)
	return strings.EqualFold(route, "/metrics") || strings.EqualFold(route, "/health")
}

func normalizeBytes(value int64) int64 {
	if value < 0 {
		return 0
	}
	return value
}

func normalizeSize(value int) int {
	if value < 0 {
		return 0
	}
	return value
}
