package domain

import (
	"errors"
	"strings"
)

var (
	ErrInvalidSignature   = errors.New("invalid_signature")
	ErrMissingSignature   = errors.New("missing_signature")
	ErrInvalidPayload     = errors.New("invalid_payload")
	ErrInvalidPaymentID   = errors.New("invalid_payment_id")
	ErrMissingAccessToken = errors.New("missing_access_token")
	ErrUpstreamClient     = errors.New("upstream_client_error")
	ErrUpstreamTransient  = errors.New("upstream_transient_error")
)

// IsAuthenticationError reports bad or missing webhook signatures.
func IsAuthenticationError(err error) bool {
	return errors.Is(err, ErrInvalidSignature) || errors.Is(err, ErrMissingSignature)
}

// IsConfigurationError reports missing mandatory configuration.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrMissingAccessToken)
}

func IsValidationError(err error) bool {
	var verrs *ValidationErrors
	return errors.As(err, &verrs) || errors.Is(err, ErrInvalidPayload) || errors.Is(err, ErrInvalidPaymentID)
}

type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationErrors collects every violated field of a request.
type ValidationErrors struct {
	Errors []FieldError
}

func (e *ValidationErrors) Add(field, code, message string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Code: code, Message: message})
}

func (e *ValidationErrors) Fields() []string {
	fields := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		fields = append(fields, fe.Field)
	}
	return fields
}

// ErrOrNil returns nil when nothing was collected.
func (e *ValidationErrors) ErrOrNil() error {
	if e == nil || len(e.Errors) == 0 {
		return nil
	}
	return e
}

func (e *ValidationErrors) Error() string {
	if e == nil || len(e.Errors) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationErrors) Is(target error) bool {
	return target == ErrInvalidPayload
}
