package webhook

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	obscontext "github.com/smallbiznis/matchpay/internal/observability/context"
	"github.com/smallbiznis/matchpay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/matchpay/internal/observability/metrics"
	"github.com/smallbiznis/matchpay/internal/payment/domain"
	"github.com/smallbiznis/matchpay/internal/payment/signature"
	"github.com/smallbiznis/matchpay/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type State string

const (
	StateReceived          State = "RECEIVED"
	StateSignatureChecked  State = "SIGNATURE_CHECKED"
	StateTopicClassified   State = "TOPIC_CLASSIFIED"
	StatePaymentIDResolved State = "PAYMENT_ID_RESOLVED"
	StateStatusFetched     State = "STATUS_FETCHED"
	StateDedupedOrMarked   State = "DEDUPED_OR_MARKED"
	StateAcknowledged      State = "ACKNOWLEDGED"
	StateRejected          State = "REJECTED"

	// StateFailed is left unacknowledged so the provider redelivers.
	StateFailed State = "FAILED"
)

type Outcome string

const (
	OutcomeProcessed        Outcome = "processed"
	OutcomeAlreadyProcessed Outcome = "already_processed"
	OutcomeIgnoredTopic     Outcome = "ignored_topic"
	OutcomeUnresolvedID     Outcome = "unresolved_payment_id"
	OutcomeInvalidPayload   Outcome = "invalid_payload"
	OutcomeFetchRejected    Outcome = "fetch_rejected"
	OutcomeFetchFailed      Outcome = "fetch_failed"
	OutcomeStoreFailed      Outcome = "store_failed"
	OutcomeMisconfigured    Outcome = "misconfigured"
	OutcomeRejected         Outcome = "rejected"
)

// InboundRequest is the raw webhook delivery. RawBody must be the exact
// received bytes.
type InboundRequest struct {
	RawBody []byte
	Headers http.Header
	Query   url.Values
}

type Result struct {
	State     State
	Outcome   Outcome
	Topic     string
	PaymentID string
}

// Verifier authenticates inbound deliveries.
type Verifier interface {
	Verify(ctx context.Context, req signature.Request) (signature.Scheme, error)
}

type ServiceParams struct {
	fx.In

	Verifier    Verifier
	Registry    *Registry
	Log         *zap.Logger
	Metrics     *obsmetrics.Metrics `optional:"true"`
	HTTPMetrics *telemetry.Metrics  `optional:"true"`
}

type Service struct {
	verifier    Verifier
	registry    *Registry
	log         *zap.Logger
	metrics     *obsmetrics.Metrics
	httpMetrics *telemetry.Metrics
}

func NewService(p ServiceParams) *Service {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		verifier:    p.Verifier,
		registry:    p.Registry,
		log:         log.Named("payment.webhook"),
		metrics:     p.Metrics,
		httpMetrics: p.HTTPMetrics,
	}
	if s.registry != nil {
		s.log.Info("webhook topics registered", zap.Strings("topics", s.registry.Topics()))
	}
	return s
}

// Receive runs one delivery through verification and topic dispatch. A
// returned error is either an authentication failure or a failure the
// provider should retry; everything else is acknowledged.
func (s *Service) Receive(ctx context.Context, req InboundRequest) (Result, error) {
	start := time.Now()
	log := logger.WithContext(ctx, s.log)
	result := Result{State: StateReceived}

	env, parseErr := ParseEnvelope(req.RawBody)
	resolution := ResolvePaymentID(env, req.Query)

	scheme, err := s.verifier.Verify(ctx, signature.Request{
		RawBody:   req.RawBody,
		Headers:   req.Headers,
		PaymentID: PaymentIDOf(resolution),
	})
	if err != nil {
		result.State = StateRejected
		result.Outcome = OutcomeRejected
		s.finish(ctx, log, result, start, err)
		return result, err
	}
	result.State = StateSignatureChecked
	log.Debug("webhook signature checked", zap.String("scheme", string(scheme)))

	if parseErr != nil {
		result.State = StateAcknowledged
		result.Outcome = OutcomeInvalidPayload
		s.finish(ctx, log, result, start, parseErr)
		return result, nil
	}

	result.Topic = ResolveTopic(env, req.Query)
	result.PaymentID = PaymentIDOf(resolution)
	result.State = StateTopicClassified
	ctx = obscontext.WithWebhookTopic(ctx, result.Topic)

	handler := s.registry.Lookup(result.Topic)
	outcome, err := handler.Handle(ctx, Event{
		Topic:      result.Topic,
		RawBody:    req.RawBody,
		Resolution: resolution,
		RequestID:  obscontext.RequestIDFromContext(ctx),
	})
	result.Outcome = outcome
	if err != nil {
		result.State = StateFailed
		s.finish(ctx, log, result, start, err)
		return result, err
	}

	result.State = StateAcknowledged
	s.finish(ctx, log, result, start, nil)
	return result, nil
}

func (s *Service) finish(ctx context.Context, log *zap.Logger, result Result, start time.Time, err error) {
	s.metrics.RecordWebhookEvent(ctx, result.Topic, string(result.Outcome))
	s.httpMetrics.RecordWebhookDelivery(result.Topic, string(result.Outcome), time.Since(start))

	fields := []zap.Field{
		zap.String("state", string(result.State)),
		zap.String("outcome", string(result.Outcome)),
		zap.String("topic", result.Topic),
		zap.String("payment_id", result.PaymentID),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	}
	switch {
	case err == nil:
		log.Info("webhook handled", fields...)
	case domain.IsAuthenticationError(err):
		log.Warn("webhook rejected", append(fields, zap.Error(err))...)
	case errors.Is(err, domain.ErrInvalidPayload):
		log.Warn("webhook payload unreadable, acknowledging", append(fields, zap.Error(err))...)
	default:
		log.Error("webhook failed", append(fields, zap.Error(err))...)
	}
}
