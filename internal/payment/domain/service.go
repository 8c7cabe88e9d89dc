package domain

import "context"

// StatusFetcher loads the authoritative state of a payment from the provider.
type StatusFetcher interface {
	FetchPayment(ctx context.Context, paymentID, accessToken string) (*AuthoritativePayment, error)
}

// IdempotencyStore decides, in a single atomic step, whether a payment id has
// been handled before.
type IdempotencyStore interface {
	CheckAndMarkProcessed(ctx context.Context, paymentID string, input MarkInput) (MarkResult, error)
}

// SideEffect runs once for every newly marked payment.
type SideEffect interface {
	Name() string
	Apply(ctx context.Context, processed ProcessedPayment) error
}
