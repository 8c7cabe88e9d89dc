package signature

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/smallbiznis/matchpay/internal/clock"
	"github.com/smallbiznis/matchpay/internal/config"
	"github.com/smallbiznis/matchpay/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "whsec_test"

func newTestVerifier(secret string, tolerance time.Duration, now time.Time) *Verifier {
	cfg := config.Config{Webhook: config.WebhookConfig{Secret: secret, Tolerance: tolerance}}
	return NewVerifier(Params{Config: cfg, Clock: clock.NewFakeClock(now), Log: zap.NewNop()})
}

func buildTemplateHeader(secret, paymentID, requestID, ts string) string {
	return "ts=" + ts + ",v1=" + ComputeTemplateSignature([]byte(secret), paymentID, requestID, ts)
}

func TestTemplateLowercasesPaymentID(t *testing.T) {
	assert.Equal(t, "id:abc123;request-id:req-1;ts:1700000000;", Template("ABC123", "req-1", "1700000000"))
}

func TestParseSignatureHeader(t *testing.T) {
	ts, v1, err := ParseSignatureHeader(" ts=1700000000 , v1=deadbeef")
	require.NoError(t, err)
	assert.Equal(t, "1700000000", ts)
	assert.Equal(t, "deadbeef", v1)

	_, _, err = ParseSignatureHeader("v1=deadbeef")
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
	_, _, err = ParseSignatureHeader("garbage")
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestVerifyTemplateScheme(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := newTestVerifier(testSecret, 0, now)

	tests := []struct {
		name    string
		header  string
		id      string
		wantErr error
	}{
		{
			name:   "valid",
			header: buildTemplateHeader(testSecret, "999", "req-1", "1700000000"),
			id:     "999",
		},
		{
			name:   "uppercase id is lowercased before signing",
			header: buildTemplateHeader(testSecret, "abc", "req-1", "1700000000"),
			id:     "ABC",
		},
		{
			name:    "wrong secret",
			header:  buildTemplateHeader("other", "999", "req-1", "1700000000"),
			id:      "999",
			wantErr: domain.ErrInvalidSignature,
		},
		{
			name:    "tampered payment id",
			header:  buildTemplateHeader(testSecret, "999", "req-1", "1700000000"),
			id:      "1000",
			wantErr: domain.ErrInvalidSignature,
		},
		{
			name:    "non hex digest",
			header:  "ts=1700000000,v1=zz",
			id:      "999",
			wantErr: domain.ErrInvalidSignature,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := http.Header{}
			headers.Set(HeaderSignature, tt.header)
			headers.Set(HeaderRequestID, "req-1")

			scheme, err := v.Verify(context.Background(), Request{Headers: headers, PaymentID: tt.id})
			assert.Equal(t, SchemeTemplate, scheme)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestVerifyTemplateReplayWindow(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := newTestVerifier(testSecret, 5*time.Minute, now)

	fresh := strconv.FormatInt(now.Add(-time.Minute).UnixMilli(), 10)
	stale := strconv.FormatInt(now.Add(-time.Hour).Unix(), 10)

	headers := http.Header{}
	headers.Set(HeaderRequestID, "req-1")

	headers.Set(HeaderSignature, buildTemplateHeader(testSecret, "999", "req-1", fresh))
	_, err := v.Verify(context.Background(), Request{Headers: headers, PaymentID: "999"})
	assert.NoError(t, err)

	headers.Set(HeaderSignature, buildTemplateHeader(testSecret, "999", "req-1", stale))
	_, err = v.Verify(context.Background(), Request{Headers: headers, PaymentID: "999"})
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestVerifyRawBodyScheme(t *testing.T) {
	v := newTestVerifier(testSecret, 0, time.Now())
	body := []byte(`{"type":"payment","data":{"id":"999"}}`)

	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	sum := mac.Sum(nil)

	tests := []struct {
		name    string
		header  string
		value   string
		wantErr bool
	}{
		{name: "hex", header: HeaderWebhookSignature, value: ComputeBodySignature([]byte(testSecret), body)},
		{name: "prefixed hex", header: HeaderHookSignature, value: "sha256=" + ComputeBodySignature([]byte(testSecret), body)},
		{name: "base64", header: HeaderWebhookSignature, value: base64.StdEncoding.EncodeToString(sum)},
		{name: "prefixed base64", header: HeaderHookSignature, value: "SHA256=" + base64.StdEncoding.EncodeToString(sum)},
		{name: "wrong digest", header: HeaderWebhookSignature, value: ComputeBodySignature([]byte("nope"), body), wantErr: true},
		{name: "empty after prefix", header: HeaderWebhookSignature, value: "sha256=", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := http.Header{}
			headers.Set(tt.header, tt.value)

			scheme, err := v.Verify(context.Background(), Request{RawBody: body, Headers: headers})
			assert.Equal(t, SchemeRawBody, scheme)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidSignature)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestVerifyRawBodyDetectsTampering(t *testing.T) {
	v := newTestVerifier(testSecret, 0, time.Now())
	signed := []byte(`{"data":{"id":"999"}}`)

	headers := http.Header{}
	headers.Set(HeaderWebhookSignature, ComputeBodySignature([]byte(testSecret), signed))

	_, err := v.Verify(context.Background(), Request{RawBody: []byte(`{"data":{"id":"1000"}}`), Headers: headers})
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestVerifyMissingHeaderFailsClosed(t *testing.T) {
	v := newTestVerifier(testSecret, 0, time.Now())

	_, err := v.Verify(context.Background(), Request{RawBody: []byte(`{}`), Headers: http.Header{}})
	assert.ErrorIs(t, err, domain.ErrMissingSignature)
	assert.True(t, domain.IsAuthenticationError(err))
}

func TestVerifyDisabledWithoutSecret(t *testing.T) {
	v := newTestVerifier("", 0, time.Now())
	assert.False(t, v.Enabled())

	scheme, err := v.Verify(context.Background(), Request{RawBody: []byte(`{}`), Headers: http.Header{}})
	assert.NoError(t, err)
	assert.Equal(t, SchemeDisabled, scheme)
}
