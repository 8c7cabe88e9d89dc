package webhook

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/smallbiznis/matchpay/internal/config"
	"github.com/smallbiznis/matchpay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/matchpay/internal/observability/metrics"
	"github.com/smallbiznis/matchpay/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrStoreUnavailable = errors.New("idempotency_store_unavailable")

type PaymentHandlerParams struct {
	fx.In

	Config      config.Config
	Fetcher     domain.StatusFetcher
	Store       domain.IdempotencyStore
	SideEffects []domain.SideEffect `group:"payment_side_effects"`
	Log         *zap.Logger
	Metrics     *obsmetrics.Metrics `optional:"true"`
}

// PaymentHandler re-fetches the payment, marks it processed and runs side
// effects only when this delivery was the one that marked it.
type PaymentHandler struct {
	accessToken string
	fetcher     domain.StatusFetcher
	store       domain.IdempotencyStore
	sideEffects []domain.SideEffect
	log         *zap.Logger
	metrics     *obsmetrics.Metrics
}

func NewPaymentHandler(p PaymentHandlerParams) *PaymentHandler {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	sideEffects := make([]domain.SideEffect, 0, len(p.SideEffects))
	for _, effect := range p.SideEffects {
		if effect != nil {
			sideEffects = append(sideEffects, effect)
		}
	}
	// fx value groups are unordered; run effects in a stable order.
	sort.SliceStable(sideEffects, func(i, j int) bool {
		return sideEffects[i].Name() < sideEffects[j].Name()
	})
	return &PaymentHandler{
		accessToken: p.Config.Provider.AccessToken,
		fetcher:     p.Fetcher,
		store:       p.Store,
		sideEffects: sideEffects,
		log:         log.Named("payment.webhook.payment"),
		metrics:     p.Metrics,
	}
}

func (h *PaymentHandler) Handle(ctx context.Context, event Event) (Outcome, error) {
	log := logger.WithContext(ctx, h.log)

	found, ok := event.Resolution.(Found)
	if !ok {
		log.Warn("payment webhook without resolvable payment id, acknowledging",
			zap.String("topic", event.Topic),
		)
		return OutcomeUnresolvedID, nil
	}
	log = logger.WithPayment(log, found.ID)
	log.Debug("webhook state", zap.String("state", string(StatePaymentIDResolved)), zap.String("source", string(found.Source)))

	payment, err := h.fetcher.FetchPayment(ctx, found.ID, h.accessToken)
	if err != nil {
		return h.fetchFailed(log, err)
	}
	log.Debug("webhook state", zap.String("state", string(StateStatusFetched)), zap.String("status", payment.Status))

	result, err := h.store.CheckAndMarkProcessed(ctx, found.ID, domain.MarkInput{
		Status:       payment.Status,
		StatusDetail: payment.StatusDetail,
		Amount:       payment.TransactionAmount,
		Topic:        event.Topic,
	})
	if err != nil {
		return OutcomeStoreFailed, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	log.Debug("webhook state", zap.String("state", string(StateDedupedOrMarked)), zap.String("result", string(result)))

	if result == domain.MarkResultAlreadyProcessed {
		log.Info("payment already processed, skipping side effects")
		return OutcomeAlreadyProcessed, nil
	}

	h.applySideEffects(ctx, log, domain.ProcessedPayment{
		Topic:     event.Topic,
		RequestID: event.RequestID,
		Payment:   *payment,
	})
	return OutcomeProcessed, nil
}

func (h *PaymentHandler) fetchFailed(log *zap.Logger, err error) (Outcome, error) {
	switch {
	case domain.IsConfigurationError(err):
		log.Error("payment provider access token missing", zap.Error(err))
		return OutcomeMisconfigured, err
	case errors.Is(err, domain.ErrUpstreamTransient):
		return OutcomeFetchFailed, err
	default:
		// Permanent failures would fail the same way on every redelivery.
		fields := []zap.Field{zap.Error(err)}
		if upstream, ok := domain.AsUpstreamError(err); ok {
			fields = append(fields,
				zap.Int("provider_status", upstream.StatusCode),
				zap.ByteString("provider_error", upstream.ProviderError),
			)
		}
		log.Warn("payment fetch rejected by provider, acknowledging", fields...)
		return OutcomeFetchRejected, nil
	}
}

// applySideEffects runs after the record exists, so a failure cannot be
// retried through redelivery. Failures are logged and counted only.
func (h *PaymentHandler) applySideEffects(ctx context.Context, log *zap.Logger, processed domain.ProcessedPayment) {
	ctx = context.WithoutCancel(ctx)
	for _, effect := range h.sideEffects {
		if err := effect.Apply(ctx, processed); err != nil {
			h.metrics.RecordSideEffectFailure(ctx, effect.Name())
			log.Error("payment side effect failed",
				zap.String("effect", effect.Name()),
				zap.Error(err),
			)
		}
	}
}
