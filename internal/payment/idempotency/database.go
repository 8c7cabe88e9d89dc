package idempotency

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/smallbiznis/matchpay/internal/clock"
	"github.com/smallbiznis/matchpay/internal/payment/domain"
	"github.com/smallbiznis/matchpay/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const DefaultCollection = "processed_payments"

var collectionPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// DatabaseStore keeps processed payment records in a SQL table. The
// decision is a single INSERT ... ON CONFLICT DO NOTHING, so concurrent
// duplicate deliveries cannot both observe "marked".
type DatabaseStore struct {
	db         *gorm.DB
	collection string
	clock      clock.Clock
}

func NewDatabaseStore(conn *gorm.DB, collection string, clk clock.Clock) (*DatabaseStore, error) {
	if conn == nil {
		return nil, errors.New("idempotency database handle is required")
	}
	collection, err := normalizeCollection(collection)
	if err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &DatabaseStore{db: conn, collection: collection, clock: clk}, nil
}

func (s *DatabaseStore) CheckAndMarkProcessed(ctx context.Context, paymentID string, input domain.MarkInput) (domain.MarkResult, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return "", domain.ErrInvalidPaymentID
	}

	record := newRecord(paymentID, input, s.clock)
	res := s.db.WithContext(ctx).
		Table(s.collection).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(&record)
	if res.Error != nil {
		if db.IsDuplicateKeyErr(res.Error) {
			return domain.MarkResultAlreadyProcessed, nil
		}
		return "", fmt.Errorf("mark payment %s processed: %w", paymentID, res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.MarkResultAlreadyProcessed, nil
	}
	return domain.MarkResultMarked, nil
}

// EnsureSchema creates the collection table when it is missing. Used for
// dialects without SQL migrations and for non-default collection names.
func (s *DatabaseStore) EnsureSchema(ctx context.Context) error {
	return s.db.WithContext(ctx).Table(s.collection).AutoMigrate(&domain.ProcessedPaymentRecord{})
}

func (s *DatabaseStore) Collection() string {
	return s.collection
}

func newRecord(paymentID string, input domain.MarkInput, clk clock.Clock) domain.ProcessedPaymentRecord {
	return domain.ProcessedPaymentRecord{
		ID:           paymentID,
		Status:       strings.TrimSpace(input.Status),
		StatusDetail: strings.TrimSpace(input.StatusDetail),
		Amount:       input.Amount,
		Topic:        strings.TrimSpace(input.Topic),
		ProcessedAt:  clk.Now().UTC(),
	}
}

func normalizeCollection(collection string) (string, error) {
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return DefaultCollection, nil
	}
	if !collectionPattern.MatchString(collection) {
		return "", fmt.Errorf("invalid idempotency collection name %q", collection)
	}
	return collection, nil
}

var _ domain.IdempotencyStore = (*DatabaseStore)(nil)
