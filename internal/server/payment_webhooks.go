package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/matchpay/internal/observability/context"
	obslogger "github.com/smallbiznis/matchpay/internal/observability/logger"
	"github.com/smallbiznis/matchpay/internal/payment/webhook"
	"go.uber.org/zap"
)

// HandlePaymentWebhook acknowledges with 200 once a delivery has been handled
// or deliberately ignored. Authentication failures and retryable failures are
// the only non-2xx answers, apart from bodies over the size limit.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		err = bodyReadError(err)
		if errors.Is(err, ErrBodyTooLarge) {
			obslogger.FromContext(c.Request.Context()).Warn("webhook body over size limit, rejecting",
				zap.Int64("limit_bytes", maxWebhookBodyBytes),
				zap.Int64("content_length", c.Request.ContentLength),
			)
		}
		AbortWithError(c, err)
		return
	}

	result, err := s.webhooks.Receive(c.Request.Context(), webhook.InboundRequest{
		RawBody: payload,
		Headers: c.Request.Header,
		Query:   c.Request.URL.Query(),
	})
	c.Set(obscontext.GinWebhookOutcomeKey, string(result.Outcome))
	if result.Topic != "" {
		c.Set(obscontext.GinWebhookTopicKey, result.Topic)
	}
	if result.PaymentID != "" {
		c.Set(obscontext.GinPaymentIDKey, result.PaymentID)
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":        true,
		"requestId": obslogger.RequestID(c),
	})
}
