package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	// Grant inserts the entitlement unless one already exists for the
	// payment and reports whether a row was written.
	Grant(ctx context.Context, db *gorm.DB, ent *Entitlement) (bool, error)
	FindByPaymentID(ctx context.Context, db *gorm.DB, paymentID string) (*Entitlement, error)
}
