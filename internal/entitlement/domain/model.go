package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Entitlement grants premium access to the user referenced by a payment.
// One row exists per payment id.
type Entitlement struct {
	ID        snowflake.ID      `json:"id" gorm:"primaryKey"`
	PaymentID string            `json:"payment_id" gorm:"type:varchar(64);not null;uniqueIndex"`
	UserRef   string            `json:"user_ref" gorm:"type:varchar(256);not null;index"`
	PlanTier  string            `json:"plan_tier" gorm:"type:varchar(64);not null"`
	Amount    float64           `json:"amount" gorm:"not null"`
	Currency  string            `json:"currency" gorm:"type:varchar(8)"`
	Metadata  datatypes.JSONMap `json:"metadata"`
	GrantedAt time.Time         `json:"granted_at" gorm:"not null"`
}

func (Entitlement) TableName() string { return "premium_entitlements" }
