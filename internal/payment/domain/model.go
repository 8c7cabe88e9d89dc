package domain

import (
	"time"
)

const (
	TopicPayment       = "payment"
	TopicPayments      = "payments"
	TopicMerchantOrder = "merchant_order"

	StatusApproved = "approved"
)

// ProcessedPaymentRecord marks an external payment as handled. It is created
// at most once per ID and never updated afterwards.
type ProcessedPaymentRecord struct {
	ID           string    `json:"id" gorm:"primaryKey;type:varchar(64)"`
	Status       string    `json:"status" gorm:"type:varchar(64);not null"`
	StatusDetail string    `json:"status_detail" gorm:"type:varchar(128);not null"`
	Amount       float64   `json:"amount" gorm:"not null"`
	Topic        string    `json:"topic" gorm:"type:varchar(64);not null"`
	ProcessedAt  time.Time `json:"processed_at" gorm:"not null"`
}

// AuthoritativePayment is the provider's current view of a payment. It is
// fetched on every event and never read from the webhook payload.
type AuthoritativePayment struct {
	ID                string         `json:"id"`
	Status            string         `json:"status"`
	StatusDetail      string         `json:"statusDetail"`
	TransactionAmount float64        `json:"transactionAmount"`
	CurrencyID        string         `json:"currencyId"`
	PaymentMethodID   string         `json:"paymentMethodId"`
	DateApproved      *time.Time     `json:"dateApproved"`
	ExternalReference string         `json:"externalReference"`
	Payer             Payer          `json:"payer"`
	Metadata          map[string]any `json:"metadata"`
}

type Payer struct {
	Email          string         `json:"email"`
	Identification Identification `json:"identification"`
}

type Identification struct {
	Type   string `json:"type"`
	Number string `json:"number"`
}

// MarkInput is the snapshot stored when a payment is first processed.
type MarkInput struct {
	Status       string
	StatusDetail string
	Amount       float64
	Topic        string
}

type MarkResult string

const (
	MarkResultAlreadyProcessed MarkResult = "already_processed"
	MarkResultMarked           MarkResult = "marked"
)

// ProcessedPayment is handed to side effects after a payment is newly marked.
type ProcessedPayment struct {
	Topic     string
	RequestID string
	Payment   AuthoritativePayment
}
