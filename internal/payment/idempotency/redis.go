package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/matchpay/internal/clock"
	"github.com/smallbiznis/matchpay/internal/payment/domain"
)

// RedisStore keeps records as JSON values under "<collection>:<paymentID>".
// SETNX without expiry is the create-if-absent primitive.
type RedisStore struct {
	client     redis.Cmdable
	collection string
	clock      clock.Clock
}

func NewRedisStore(client redis.Cmdable, collection string, clk clock.Clock) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("idempotency redis client is required")
	}
	collection, err := normalizeCollection(collection)
	if err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &RedisStore{client: client, collection: collection, clock: clk}, nil
}

func (s *RedisStore) CheckAndMarkProcessed(ctx context.Context, paymentID string, input domain.MarkInput) (domain.MarkResult, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return "", domain.ErrInvalidPaymentID
	}

	payload, err := json.Marshal(newRecord(paymentID, input, s.clock))
	if err != nil {
		return "", err
	}

	created, err := s.client.SetNX(ctx, s.key(paymentID), payload, 0).Result()
	if err != nil {
		return "", fmt.Errorf("mark payment %s processed: %w", paymentID, err)
	}
	if !created {
		return domain.MarkResultAlreadyProcessed, nil
	}
	return domain.MarkResultMarked, nil
}

func (s *RedisStore) key(paymentID string) string {
	return s.collection + ":" + paymentID
}

var _ domain.IdempotencyStore = (*RedisStore)(nil)
