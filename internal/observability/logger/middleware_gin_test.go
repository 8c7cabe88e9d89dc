package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/matchpay/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestGinMiddlewareGeneratesCorrelationID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var (
		seenRequestID  string
		seenProviderID string
	)
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.POST("/hook", func(c *gin.Context) {
		seenRequestID = obscontext.RequestIDFromContext(c.Request.Context())
		seenProviderID = obscontext.ProviderRequestIDFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/hook", nil)
	req.Header.Set("X-Request-Id", "provider-req-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.NotEmpty(t, seenRequestID)
	assert.NotEqual(t, "provider-req-1", seenRequestID)
	assert.Equal(t, "provider-req-1", seenProviderID)
	assert.Equal(t, seenRequestID, w.Header().Get(CorrelationHeader))
}

func TestRequestIDIsStableWithinRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var first, second string
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.GET("/x", func(c *gin.Context) {
		first = RequestID(c)
		second = RequestID(c)
		c.Status(http.StatusNoContent)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.NotEmpty(t, first)
	assert.Equal(t, first, second)
}

func TestGinMiddlewareLogsWebhookFields(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)
	t.Cleanup(zap.ReplaceGlobals(zap.New(core)))

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.POST("/api/payments/webhooks", func(c *gin.Context) {
		c.Set(obscontext.GinWebhookOutcomeKey, "processed")
		c.Set(obscontext.GinWebhookTopicKey, "payment")
		c.Set(obscontext.GinPaymentIDKey, "999")
		c.Status(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/payments/webhooks", nil))

	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/api/payments/webhooks", fields["route"])
	assert.Equal(t, "processed", fields["webhook_outcome"])
	assert.Equal(t, "payment", fields["webhook_topic"])
	assert.Equal(t, "999", fields["payment_id"])
}
