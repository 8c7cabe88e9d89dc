package confirmation

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/smallbiznis/matchpay/internal/payment/domain"
)

// ParseRequest decodes a confirmation body and validates it. Fields sent
// with the wrong JSON type are listed next to the validator's violations.
func (s *Service) ParseRequest(body []byte) (Request, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		verrs := &domain.ValidationErrors{}
		verrs.Add("body", "invalid_request", "request body must be a JSON object")
		return Request{}, verrs
	}

	verrs := &domain.ValidationErrors{}
	mistyped := map[string]bool{}
	readString := func(name string) string {
		raw, ok := fields[name]
		if !ok || string(raw) == "null" {
			return ""
		}
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			mistyped[name] = true
			verrs.Add(name, "string", "must be a string")
			return ""
		}
		return strings.TrimSpace(value)
	}

	req := Request{
		PaymentID:         readString("paymentId"),
		ExternalReference: readString("externalReference"),
	}

	if err := s.Validate(req); err != nil {
		var fieldErrs *domain.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return req, err
		}
		for _, fe := range fieldErrs.Errors {
			if !mistyped[fe.Field] {
				verrs.Errors = append(verrs.Errors, fe)
			}
		}
	}
	return req, verrs.ErrOrNil()
}
