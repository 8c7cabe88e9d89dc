package webhook

import (
	"bytes"
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/smallbiznis/matchpay/internal/payment/domain"
)

// Envelope holds the loosely typed fields read from a webhook body. Any of
// them may be absent; providers move the payment id between locations.
type Envelope struct {
	ID       string
	DataID   string
	Resource string
	Topic    string
	Type     string
	Action   string
}

// ParseEnvelope reads the known fields without failing on unexpected shapes
// of individual fields. Only a body that is not a JSON object is an error.
func ParseEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if len(bytes.TrimSpace(body)) == 0 {
		return env, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return env, domain.ErrInvalidPayload
	}

	env.ID = scalar(fields["id"])
	env.Resource = scalar(fields["resource"])
	env.Topic = scalar(fields["topic"])
	env.Type = scalar(fields["type"])
	env.Action = scalar(fields["action"])

	if rawData, ok := fields["data"]; ok {
		var data map[string]json.RawMessage
		if err := json.Unmarshal(rawData, &data); err == nil {
			env.DataID = scalar(data["id"])
		}
	}
	return env, nil
}

// ResolveTopic picks the event topic from the body, then from the query.
func ResolveTopic(env Envelope, query url.Values) string {
	candidates := []string{env.Topic, env.Type, query.Get("topic"), query.Get("type")}
	for _, candidate := range candidates {
		if topic := strings.ToLower(strings.TrimSpace(candidate)); topic != "" {
			return topic
		}
	}
	return ""
}

type IDSource string

const (
	SourceDataID      IDSource = "data.id"
	SourceID          IDSource = "id"
	SourceResource    IDSource = "resource"
	SourceQueryDataID IDSource = "query.data.id"
	SourceQueryID     IDSource = "query.id"
)

// PaymentIDResolution is either Found or NotFound.
type PaymentIDResolution interface {
	resolution()
}

type Found struct {
	ID     string
	Source IDSource
}

type NotFound struct{}

func (Found) resolution()    {}
func (NotFound) resolution() {}

var (
	resourcePattern  = regexp.MustCompile(`/v1/payments/([A-Za-z0-9_-]+)`)
	paymentIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
)

// ResolvePaymentID tries each known location in a fixed order: body data.id,
// body id, resource URL, then the query string.
func ResolvePaymentID(env Envelope, query url.Values) PaymentIDResolution {
	strategies := []struct {
		source IDSource
		value  func() string
	}{
		{SourceDataID, func() string { return env.DataID }},
		{SourceID, func() string { return env.ID }},
		{SourceResource, func() string { return idFromResource(env.Resource) }},
		{SourceQueryDataID, func() string { return query.Get("data.id") }},
		{SourceQueryID, func() string { return query.Get("id") }},
	}

	for _, strategy := range strategies {
		id := strings.TrimSpace(strategy.value())
		if paymentIDPattern.MatchString(id) {
			return Found{ID: id, Source: strategy.source}
		}
	}
	return NotFound{}
}

// PaymentIDOf returns the resolved id or "".
func PaymentIDOf(res PaymentIDResolution) string {
	if found, ok := res.(Found); ok {
		return found.ID
	}
	return ""
}

func idFromResource(resource string) string {
	match := resourcePattern.FindStringSubmatch(resource)
	if len(match) < 2 {
		return ""
	}
	return match[1]
}

func scalar(raw json.RawMessage) string {
	if len(raw) == 0 {
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
