package models

import (
	"time"

	"github.com/google/uuid"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
)

const (
	MethodCard         = "card"
	MethodPayPal       = "paypal"
	MethodMpesa        = "mpesa"
	MethodPayAtPickup  = "pay_at_pickup"
	MethodBankTransfer = "bank_transfer"
)

// IsOfflineMethod reports payment paths that need a manual admin approval.
func IsOfflineMethod(method string) bool {
	return method == MethodPayAtPickup || method == MethodBankTransfer
}

type Payment struct {
	ID            uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	BookingID     uuid.UUID     `gorm:"type:uuid;not null;index" json:"booking_id"`
	Amount        float64       `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency      string        `gorm:"size:3" json:"currency"`
	Method        *string       `gorm:"size:30" json:"method,omitempty"`
	Gateway       *string       `gorm:"size:50" json:"gateway,omitempty"`
	GatewayRef    *string       `gorm:"size:255;index" json:"gateway_ref,omitempty"`
	TransactionID *string       `gorm:"size:255;unique" json:"transaction_id,omitempty"`
	Status        PaymentStatus `gorm:"size:20;not null" json:"status"`
	ProofURL      *string       `gorm:"type:text" json:"proof_url,omitempty"`
	FailureReason *string       `gorm:"type:text" json:"failure_reason,omitempty"`
	PaidAt        *time.Time    `json:"paid_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
