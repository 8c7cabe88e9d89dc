package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	obslogger "github.com/smallbiznis/matchpay/internal/observability/logger"
	"github.com/smallbiznis/matchpay/internal/payment/domain"
	"github.com/smallbiznis/matchpay/internal/payment/webhook"
)

type errorResponse struct {
	Error         string              `json:"error"`
	Message       string              `json:"message"`
	RequestID     string              `json:"requestId"`
	Status        int                 `json:"status,omitempty"`
	ProviderError json.RawMessage     `json:"providerError,omitempty"`
	Errors        []domain.FieldError `json:"errors,omitempty"`
}

var (
	ErrNotFound     = errors.New("not_found")
	ErrRateLimited  = errors.New("rate_limited")
	ErrBodyTooLarge = errors.New("payload_too_large")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		payload.RequestID = obslogger.RequestID(c)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, payload)
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError(message string) error {
	verrs := &domain.ValidationErrors{}
	verrs.Add("body", "invalid_request", message)
	return verrs
}

// bodyReadError separates an over-limit body from an unreadable one.
func bodyReadError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return ErrBodyTooLarge
	}
	return invalidRequestError("request body could not be read")
}

func mapError(err error) (int, errorResponse) {
	if err == nil {
		return http.StatusInternalServerError, errorResponse{
			Error:   "internal_error",
			Message: "internal server error",
		}
	}

	var verrs *domain.ValidationErrors
	if errors.As(err, &verrs) {
		return http.StatusBadRequest, errorResponse{
			Error:   "validation_error",
			Message: "validation error",
			Errors:  verrs.Errors,
		}
	}

	switch {
	case domain.IsAuthenticationError(err):
		code := "invalid_signature"
		if errors.Is(err, domain.ErrMissingSignature) {
			code = "missing_signature"
		}
		return http.StatusUnauthorized, errorResponse{
			Error:   code,
			Message: "webhook signature could not be verified",
		}
	case domain.IsValidationError(err):
		return http.StatusBadRequest, errorResponse{
			Error:   "validation_error",
			Message: "validation error",
			Errors:  []domain.FieldError{{Field: "paymentId", Code: "invalid", Message: err.Error()}},
		}
	case domain.IsConfigurationError(err):
		return http.StatusInternalServerError, errorResponse{
			Error:   "misconfigured",
			Message: "payment provider access token is not configured",
		}
	case errors.Is(err, webhook.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, errorResponse{
			Error:   "store_unavailable",
			Message: "idempotency store unavailable, retry later",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorResponse{
			Error:   "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge, errorResponse{
			Error:   "payload_too_large",
			Message: "request body exceeds the size limit",
		}
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, errorResponse{
			Error:   "not_found",
			Message: "not found",
		}
	}

	if upstream, ok := domain.AsUpstreamError(err); ok {
		status := http.StatusBadGateway
		code := "upstream_rejected"
		message := "payment provider rejected the request"
		if upstream.Retryable() {
			status = http.StatusServiceUnavailable
			code = "upstream_unavailable"
			message = "payment provider unavailable, retry later"
		}
		return status, errorResponse{
			Error:         code,
			Message:       message,
			Status:        upstream.StatusCode,
			ProviderError: upstream.ProviderError,
		}
	}

	return http.StatusInternalServerError, errorResponse{
		Error:   "internal_error",
		Message: "internal server error",
	}
}

// classifyErrorForLog feeds the request logger's error_type/error_code fields.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	status, payload := mapError(err)
	switch {
	case status == http.StatusBadRequest:
		return "validation", payload.Error
	case status == http.StatusUnauthorized:
		return "auth", payload.Error
	case status == http.StatusRequestEntityTooLarge:
		return "validation", payload.Error
	case status == http.StatusTooManyRequests:
		return "rate_limit", payload.Error
	case status == http.StatusBadGateway, status == http.StatusServiceUnavailable:
		return "upstream", payload.Error
	case status == http.StatusNotFound:
		return "not_found", payload.Error
	default:
		return "internal", payload.Error
	}
}
