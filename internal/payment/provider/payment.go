package provider

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/matchpay/internal/payment/domain"
)

var errNotObject = errors.New("payment body is not a JSON object")

// providerPayment holds the raw fields of the provider's payment resource.
// Each field is read on its own so one mistyped value never fails the rest;
// anything missing or unreadable falls back to its zero value.
type providerPayment map[string]json.RawMessage

func decodePayment(body []byte) (providerPayment, error) {
	var raw providerPayment
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, errNotObject
	}
	if raw == nil {
		return nil, errNotObject
	}
	return raw, nil
}

func (p providerPayment) toDomain() domain.AuthoritativePayment {
	out := domain.AuthoritativePayment{
		ID:                scalarString(p["id"]),
		Status:            scalarString(p["status"]),
		StatusDetail:      scalarString(p["status_detail"]),
		TransactionAmount: scalarFloat(p["transaction_amount"]),
		CurrencyID:        scalarString(p["currency_id"]),
		PaymentMethodID:   scalarString(p["payment_method_id"]),
		DateApproved:      parseProviderTime(scalarString(p["date_approved"])),
		ExternalReference: scalarString(p["external_reference"]),
		Metadata:          object(p["metadata"]),
	}
	if out.Metadata == nil {
		out.Metadata = map[string]any{}
	}

	payer := rawObject(p["payer"])
	out.Payer.Email = scalarString(payer["email"])
	if ident := rawObject(payer["identification"]); ident != nil {
		out.Payer.Identification = domain.Identification{
			Type:   scalarString(ident["type"]),
			Number: scalarString(ident["number"]),
		}
	}
	return out
}

// scalarString renders a JSON string or number as text. Numbers keep their
// integer form, 123456789012 never becomes 1.23456789012e+11.
func scalarString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return n.String()
	}
	return ""
}

// scalarFloat accepts a JSON number or a numeric string.
func scalarFloat(raw json.RawMessage) float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return parsed
		}
	}
	return 0
}

func object(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func rawObject(raw json.RawMessage) map[string]json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

var providerTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
}

func parseProviderTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	for _, layout := range providerTimeLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			utc := parsed.UTC()
			return &utc
		}
	}
	return nil
}
