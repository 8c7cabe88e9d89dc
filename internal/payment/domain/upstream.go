package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// UpstreamClass separates provider failures that may succeed on retry from
// those that never will.
type UpstreamClass int

const (
	UpstreamPermanent UpstreamClass = iota + 1
	UpstreamTransient
)

func (c UpstreamClass) String() string {
	switch c {
	case UpstreamPermanent:
		return "permanent"
	case UpstreamTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// ClassifyUpstreamError maps a provider HTTP status to a retry class. It is
// the only place the 4xx/5xx split is decided. A zero status means no
// response was received (timeout, connection failure) and is transient.
func ClassifyUpstreamError(statusCode int) UpstreamClass {
	switch {
	case statusCode == 0:
		return UpstreamTransient
	case statusCode >= http.StatusInternalServerError:
		return UpstreamTransient
	default:
		return UpstreamPermanent
	}
}

// StatusClass renders a status code as a low-cardinality metric label.
func StatusClass(statusCode int) string {
	if statusCode <= 0 {
		return "none"
	}
	return fmt.Sprintf("%dxx", statusCode/100)
}

// UpstreamError is a failed call to the payment provider.
type UpstreamError struct {
	Class         UpstreamClass
	StatusCode    int
	ProviderError json.RawMessage
	Err           error
}

// NewUpstreamStatusError builds an error from a non-2xx provider response.
// The body is kept as diagnostics when it is JSON, quoted otherwise.
func NewUpstreamStatusError(statusCode int, body []byte) *UpstreamError {
	return &UpstreamError{
		Class:         ClassifyUpstreamError(statusCode),
		StatusCode:    statusCode,
		ProviderError: providerPayload(body),
	}
}

// NewUpstreamTransportError wraps a failure where no usable response exists.
func NewUpstreamTransportError(err error) *UpstreamError {
	return &UpstreamError{
		Class: ClassifyUpstreamError(0),
		Err:   err,
	}
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("payment provider unreachable (%s): %v", e.Class, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("payment provider responded %d (%s): %v", e.StatusCode, e.Class, e.Err)
	}
	return fmt.Sprintf("payment provider responded %d (%s)", e.StatusCode, e.Class)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func (e *UpstreamError) Is(target error) bool {
	switch target {
	case ErrUpstreamClient:
		return e.Class == UpstreamPermanent
	case ErrUpstreamTransient:
		return e.Class == UpstreamTransient
	}
	return false
}

// Retryable reports whether the caller's upstream should be asked to retry.
func (e *UpstreamError) Retryable() bool {
	return e != nil && e.Class == UpstreamTransient
}

// AsUpstreamError extracts an UpstreamError from err.
func AsUpstreamError(err error) (*UpstreamError, bool) {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream, true
	}
	return nil, false
}

func providerPayload(body []byte) json.RawMessage {
	if len(body) == 0 {
		return nil
	}
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	quoted, err := json.Marshal(string(body))
	if err != nil {
		return nil
	}
	return quoted
}
