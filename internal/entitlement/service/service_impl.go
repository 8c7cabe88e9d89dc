package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/matchpay/internal/clock"
	"github.com/smallbiznis/matchpay/internal/config"
	entdomain "github.com/smallbiznis/matchpay/internal/entitlement/domain"
	"github.com/smallbiznis/matchpay/internal/observability/logger"
	"github.com/smallbiznis/matchpay/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Config config.Config
	DB     *gorm.DB
	GenID  *snowflake.Node
	Plans  *config.PlanTierHolder `optional:"true"`
	Clock  clock.Clock
	Repo   entdomain.Repository
	Log    *zap.Logger
}

// Service grants premium access for approved payments that carry the
// application's user reference.
type Service struct {
	enabled bool
	db      *gorm.DB
	repo    entdomain.Repository
	genID   *snowflake.Node
	plans   *config.PlanTierHolder
	clock   clock.Clock
	log     *zap.Logger
}

func New(p Params) *Service {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		enabled: p.Config.EntitlementsEnabled,
		db:      p.DB,
		repo:    p.Repo,
		genID:   p.GenID,
		plans:   p.Plans,
		clock:   clk,
		log:     log.Named("entitlement"),
	}
}

func (s *Service) Name() string { return "entitlement" }

func (s *Service) Apply(ctx context.Context, processed domain.ProcessedPayment) error {
	if !s.enabled {
		return nil
	}
	payment := processed.Payment
	userRef := strings.TrimSpace(payment.ExternalReference)
	if payment.Status != domain.StatusApproved || userRef == "" {
		return nil
	}

	ent := &entdomain.Entitlement{
		ID:        s.genID.Generate(),
		PaymentID: payment.ID,
		UserRef:   userRef,
		PlanTier:  s.plans.Get().Classify(payment.TransactionAmount),
		Amount:    payment.TransactionAmount,
		Currency:  payment.CurrencyID,
		Metadata:  datatypes.JSONMap(payment.Metadata),
		GrantedAt: s.clock.Now().UTC(),
	}
	if ent.Metadata == nil {
		ent.Metadata = datatypes.JSONMap{}
	}

	granted, err := s.repo.Grant(ctx, s.db, ent)
	if err != nil {
		return fmt.Errorf("grant entitlement: %w", err)
	}

	log := logger.WithPayment(logger.WithContext(ctx, s.log), payment.ID)
	if !granted {
		existing, err := s.repo.FindByPaymentID(ctx, s.db, payment.ID)
		if err != nil {
			return fmt.Errorf("load existing entitlement: %w", err)
		}
		fields := []zap.Field{}
		if existing != nil {
			fields = append(fields,
				zap.String("entitlement_id", existing.ID.String()),
				zap.Bool("user_ref_match", existing.UserRef == userRef),
			)
		}
		log.Info("entitlement already granted", fields...)
		return nil
	}
	log.Info("entitlement granted",
		zap.String("entitlement_id", ent.ID.String()),
		zap.String("plan_tier", ent.PlanTier),
	)
	return nil
}

var _ domain.SideEffect = (*Service)(nil)
