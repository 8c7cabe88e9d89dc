package idempotency

import (
	"context"
	"errors"
	"fmt"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/matchpay/internal/clock"
	"github.com/smallbiznis/matchpay/internal/config"
	"github.com/smallbiznis/matchpay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/matchpay/internal/observability/metrics"
	"github.com/smallbiznis/matchpay/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Config  config.Config
	DB      *gorm.DB
	Redis   *redis.Client `optional:"true"`
	Clock   clock.Clock
	Log     *zap.Logger
	Metrics *obsmetrics.Metrics `optional:"true"`
}

// NewStore selects the configured backend and wraps it with logging and
// decision metrics.
func NewStore(p Params) (domain.IdempotencyStore, error) {
	var (
		backend domain.IdempotencyStore
		err     error
	)
	switch p.Config.Idempotency.Backend {
	case config.IdempotencyBackendRedis:
		if p.Redis == nil {
			return nil, errors.New("idempotency backend redis requires REDIS_ADDR")
		}
		backend, err = NewRedisStore(p.Redis, p.Config.Idempotency.Collection, p.Clock)
	case config.IdempotencyBackendDatabase, "":
		var store *DatabaseStore
		store, err = NewDatabaseStore(p.DB, p.Config.Idempotency.Collection, p.Clock)
		if err == nil && store.Collection() != DefaultCollection {
			// Migrations only create the default table.
			err = store.EnsureSchema(context.Background())
		}
		backend = store
	default:
		return nil, fmt.Errorf("unsupported idempotency backend %q", p.Config.Idempotency.Backend)
	}
	if err != nil {
		return nil, err
	}

	name := p.Config.Idempotency.Backend
	if name == "" {
		name = config.IdempotencyBackendDatabase
	}
	return NewInstrumentedStore(backend, name, p.Log, p.Metrics), nil
}

// InstrumentedStore logs and counts every idempotency decision.
type InstrumentedStore struct {
	next    domain.IdempotencyStore
	backend string
	log     *zap.Logger
	metrics *obsmetrics.Metrics
}

func NewInstrumentedStore(next domain.IdempotencyStore, backend string, log *zap.Logger, metrics *obsmetrics.Metrics) *InstrumentedStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &InstrumentedStore{
		next:    next,
		backend: backend,
		log:     log.Named("payment.idempotency"),
		metrics: metrics,
	}
}

func (s *InstrumentedStore) CheckAndMarkProcessed(ctx context.Context, paymentID string, input domain.MarkInput) (domain.MarkResult, error) {
	log := logger.WithPayment(logger.WithContext(ctx, s.log), paymentID)

	result, err := s.next.CheckAndMarkProcessed(ctx, paymentID, input)
	if err != nil {
		s.metrics.RecordIdempotencyDecision(ctx, s.backend, "error")
		log.Error("idempotency check failed", zap.String("backend", s.backend), zap.Error(err))
		return "", err
	}

	s.metrics.RecordIdempotencyDecision(ctx, s.backend, string(result))
	log.Info("idempotency decision",
		zap.String("backend", s.backend),
		zap.String("result", string(result)),
		zap.String("status", input.Status),
	)
	return result, nil
}

var _ domain.IdempotencyStore = (*InstrumentedStore)(nil)
