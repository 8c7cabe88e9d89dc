package analytics

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/smallbiznis/matchpay/internal/clock"
	"github.com/smallbiznis/matchpay/internal/config"
	"github.com/smallbiznis/matchpay/internal/observability/logger"
	"github.com/smallbiznis/matchpay/internal/payment/domain"
	"github.com/smallbiznis/matchpay/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const EventPurchase = "purchase"

type Params struct {
	fx.In

	Config      config.Config
	Plans       *config.PlanTierHolder `optional:"true"`
	Clock       clock.Clock
	Log         *zap.Logger
	HTTPMetrics *telemetry.Metrics `optional:"true"`
}

// Service emits one purchase event for every newly processed payment.
type Service struct {
	sink    Sink
	plans   *config.PlanTierHolder
	clock   clock.Clock
	log     *zap.Logger
	metrics *telemetry.Metrics
}

func NewService(p Params) (*Service, error) {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	sink, err := newSink(p.Config.Analytics, log)
	if err != nil {
		return nil, err
	}
	return newService(sink, p.Plans, p.Clock, log, p.HTTPMetrics), nil
}

func newService(sink Sink, plans *config.PlanTierHolder, clk clock.Clock, log *zap.Logger, metrics *telemetry.Metrics) *Service {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		sink:    sink,
		plans:   plans,
		clock:   clk,
		log:     log.Named("analytics"),
		metrics: metrics,
	}
}

func newSink(cfg config.AnalyticsConfig, log *zap.Logger) (Sink, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Sink)) {
	case config.AnalyticsSinkLog, "":
		return NewLogSink(log), nil
	case config.AnalyticsSinkNone:
		return NoopSink{}, nil
	case config.AnalyticsSinkHTTP:
		if strings.TrimSpace(cfg.Endpoint) == "" {
			return nil, fmt.Errorf("analytics sink http requires ANALYTICS_ENDPOINT")
		}
		return NewHTTPSink(cfg.Endpoint, cfg.APIKey, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unsupported analytics sink %q", cfg.Sink)
	}
}

func (s *Service) Name() string { return "analytics" }

func (s *Service) Apply(ctx context.Context, processed domain.ProcessedPayment) error {
	payment := processed.Payment
	tier := s.plans.Get().Classify(payment.TransactionAmount)

	event := Event{
		EventID:           uuid.NewString(),
		Name:              EventPurchase,
		PaymentID:         payment.ID,
		Status:            payment.Status,
		StatusDetail:      payment.StatusDetail,
		Amount:            payment.TransactionAmount,
		Currency:          payment.CurrencyID,
		PaymentMethodID:   payment.PaymentMethodID,
		PlanTier:          tier,
		ExternalReference: payment.ExternalReference,
		Topic:             processed.Topic,
		RequestID:         processed.RequestID,
		OccurredAt:        s.clock.Now().UTC(),
	}
	if err := s.sink.Emit(ctx, event); err != nil {
		return fmt.Errorf("emit %s event: %w", event.Name, err)
	}

	s.metrics.ObservePaymentAmount(tier, payment.TransactionAmount)
	logger.WithPayment(logger.WithContext(ctx, s.log), payment.ID).
		Debug("analytics event emitted", zap.String("plan_tier", tier))
	return nil
}

var _ domain.SideEffect = (*Service)(nil)
