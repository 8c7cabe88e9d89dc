package notification

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/smallbiznis/matchpay/internal/config"
	"github.com/smallbiznis/matchpay/internal/observability/logger"
	"github.com/smallbiznis/matchpay/internal/payment/domain"
	"github.com/smallbiznis/matchpay/internal/providers/push"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// keyNamespace derives stable push idempotency keys from payment ids.
var keyNamespace = uuid.MustParse("6f1c2d4e-8a9b-4c3d-9e8f-7a6b5c4d3e2f")

type Params struct {
	fx.In

	Push  push.Provider
	Plans *config.PlanTierHolder `optional:"true"`
	Log   *zap.Logger
}

// Service tells the paying user their premium access is active.
type Service struct {
	push  push.Provider
	plans *config.PlanTierHolder
	log   *zap.Logger
}

func NewService(p Params) *Service {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	provider := p.Push
	if provider == nil {
		provider = &push.NoOpProvider{}
	}
	return &Service{
		push:  provider,
		plans: p.Plans,
		log:   log.Named("notification"),
	}
}

func (s *Service) Name() string { return "notification" }

func (s *Service) Apply(ctx context.Context, processed domain.ProcessedPayment) error {
	payment := processed.Payment
	userRef := strings.TrimSpace(payment.ExternalReference)
	if payment.Status != domain.StatusApproved || userRef == "" {
		return nil
	}

	tier := s.plans.Get().Classify(payment.TransactionAmount)
	notification := push.Notification{
		IdempotencyKey: uuid.NewSHA1(keyNamespace, []byte(payment.ID)).String(),
		UserRef:        userRef,
		Title:          "Premium activated",
		Body:           "Your " + tier + " plan is now active.",
		Data: map[string]string{
			"paymentId": payment.ID,
			"planTier":  tier,
		},
	}
	if err := s.push.Send(ctx, notification); err != nil {
		return err
	}

	logger.WithPayment(logger.WithContext(ctx, s.log), payment.ID).
		Debug("premium notification sent", zap.String("plan_tier", tier))
	return nil
}

var _ domain.SideEffect = (*Service)(nil)
