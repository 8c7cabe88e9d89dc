package signature

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/matchpay/internal/clock"
	"github.com/smallbiznis/matchpay/internal/config"
	"github.com/smallbiznis/matchpay/internal/observability/logger"
	"github.com/smallbiznis/matchpay/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Scheme string

const (
	SchemeDisabled Scheme = "disabled"
	SchemeTemplate Scheme = "template"
	SchemeRawBody  Scheme = "raw_body"
)

// Request carries what a signature is checked against. PaymentID is the id
// resolved from the untrusted payload; it only feeds the template.
type Request struct {
	RawBody   []byte
	Headers   http.Header
	PaymentID string
}

type Params struct {
	fx.In

	Config config.Config
	Clock  clock.Clock
	Log    *zap.Logger
}

type Verifier struct {
	secret    []byte
	tolerance time.Duration
	clock     clock.Clock
	log       *zap.Logger
}

func NewVerifier(p Params) *Verifier {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	v := &Verifier{
		secret:    []byte(p.Config.Webhook.Secret),
		tolerance: p.Config.Webhook.Tolerance,
		clock:     clk,
		log:       log.Named("payment.signature"),
	}
	if !v.Enabled() {
		v.log.Warn("webhook signature verification disabled: no secret configured")
	}
	return v
}

// Enabled reports whether a secret is configured.
func (v *Verifier) Enabled() bool {
	return v != nil && len(v.secret) > 0
}

// Verify returns nil when the request is authentic or verification is
// disabled. It fails closed with ErrMissingSignature when a secret exists
// and no signature header was sent.
func (v *Verifier) Verify(ctx context.Context, req Request) (Scheme, error) {
	log := logger.WithContext(ctx, v.log)
	if !v.Enabled() {
		log.Warn("webhook signature check skipped, verification disabled")
		return SchemeDisabled, nil
	}

	if header := strings.TrimSpace(req.Headers.Get(HeaderSignature)); header != "" {
		requestID := strings.TrimSpace(req.Headers.Get(HeaderRequestID))
		ts, err := VerifyTemplateSignature(v.secret, header, req.PaymentID, requestID)
		if err != nil {
			log.Warn("webhook signature mismatch", zap.String("scheme", string(SchemeTemplate)))
			return SchemeTemplate, err
		}
		if err := v.checkReplayWindow(ts); err != nil {
			log.Warn("webhook signature outside replay window", zap.String("ts", ts))
			return SchemeTemplate, err
		}
		return SchemeTemplate, nil
	}

	for _, name := range []string{HeaderWebhookSignature, HeaderHookSignature} {
		header := strings.TrimSpace(req.Headers.Get(name))
		if header == "" {
			continue
		}
		if err := VerifyBodySignature(v.secret, header, req.RawBody); err != nil {
			log.Warn("webhook signature mismatch",
				zap.String("scheme", string(SchemeRawBody)),
				zap.String("header", name),
			)
			return SchemeRawBody, err
		}
		return SchemeRawBody, nil
	}

	log.Warn("webhook signature header missing")
	return "", domain.ErrMissingSignature
}

func (v *Verifier) checkReplayWindow(ts string) error {
	if v.tolerance <= 0 {
		return nil
	}
	signedAt, err := parseTimestamp(ts)
	if err != nil {
		return domain.ErrInvalidSignature
	}
	drift := v.clock.Now().Sub(signedAt)
	if drift < 0 {
		drift = -drift
	}
	if drift > v.tolerance {
		return domain.ErrInvalidSignature
	}
	return nil
}
