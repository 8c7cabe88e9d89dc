package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/matchpay/internal/payment/domain"
)

const (
	HeaderSignature        = "X-Signature"
	HeaderRequestID        = "X-Request-Id"
	HeaderWebhookSignature = "X-Webhook-Signature"
	HeaderHookSignature    = "X-Hook-Signature"

	bodySignaturePrefix = "sha256="
)

// Template builds the canonical string signed by the provider for the
// x-signature scheme.
func Template(paymentID, requestID, ts string) string {
	return fmt.Sprintf("id:%s;request-id:%s;ts:%s;", strings.ToLower(paymentID), requestID, ts)
}

// ComputeTemplateSignature returns the hex HMAC-SHA256 of the template.
func ComputeTemplateSignature(secret []byte, paymentID, requestID, ts string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(Template(paymentID, requestID, ts)))
	return hex.EncodeToString(mac.Sum(nil))
}

// ParseSignatureHeader splits "ts=<timestamp>,v1=<hex>" into its parts.
func ParseSignatureHeader(header string) (string, string, error) {
	var ts, v1 string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(kv[0]))
		value := strings.TrimSpace(kv[1])
		switch key {
		case "ts":
			ts = value
		case "v1":
			v1 = value
		}
	}
	if ts == "" || v1 == "" {
		return "", "", domain.ErrInvalidSignature
	}
	return ts, v1, nil
}

// VerifyTemplateSignature checks an x-signature header against the template
// scheme and returns the signed timestamp.
func VerifyTemplateSignature(secret []byte, header, paymentID, requestID string) (string, error) {
	ts, v1, err := ParseSignatureHeader(header)
	if err != nil {
		return "", err
	}
	received, err := hex.DecodeString(strings.ToLower(v1))
	if err != nil {
		return "", domain.ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(Template(paymentID, requestID, ts)))
	if !hmac.Equal(received, mac.Sum(nil)) {
		return "", domain.ErrInvalidSignature
	}
	return ts, nil
}

// ComputeBodySignature returns the hex HMAC-SHA256 of the raw body.
func ComputeBodySignature(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyBodySignature checks a bare hex or base64 HMAC of the raw body,
// optionally prefixed with "sha256=".
func VerifyBodySignature(secret []byte, header string, body []byte) error {
	value := strings.TrimSpace(header)
	if len(value) >= len(bodySignaturePrefix) && strings.EqualFold(value[:len(bodySignaturePrefix)], bodySignaturePrefix) {
		value = value[len(bodySignaturePrefix):]
	}
	if value == "" {
		return domain.ErrInvalidSignature
	}

	received, ok := decodeDigest(value)
	if !ok {
		return domain.ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	if !hmac.Equal(received, mac.Sum(nil)) {
		return domain.ErrInvalidSignature
	}
	return nil
}

func decodeDigest(value string) ([]byte, bool) {
	if len(value) == hex.EncodedLen(sha256.Size) {
		if decoded, err := hex.DecodeString(value); err == nil {
			return decoded, true
		}
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if decoded, err := enc.DecodeString(value); err == nil && len(decoded) == sha256.Size {
			return decoded, true
		}
	}
	return nil, false
}

// parseTimestamp accepts unix seconds or milliseconds.
func parseTimestamp(ts string) (time.Time, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(ts), 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	if value > 1_000_000_000_000 {
		return time.UnixMilli(value).UTC(), nil
	}
	return time.Unix(value, 0).UTC(), nil
}
