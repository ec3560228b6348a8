package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	CommissionPending  = "PENDING"
	CommissionPaid     = "PAID"
	CommissionDisputed = "DISPUTED"
)

// Commission is the platform's cut of one booking. The (booking_id,
// booking_type) pair is unique.
type Commission struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	BookingID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_commission_booking" json:"booking_id"`
	BookingType UnitType  `gorm:"size:20;not null;uniqueIndex:idx_commission_booking" json:"booking_type"`
	ProviderID  uuid.UUID `gorm:"type:uuid;not null;index" json:"provider_id"`
	Amount      float64   `gorm:"type:numeric(12,2);not null" json:"amount"`
	Percentage  float64   `gorm:"type:numeric(5,2);not null" json:"percentage"`
	Currency    string    `gorm:"size:3;not null" json:"currency"`
	Status      string    `gorm:"size:20;not null;default:'PENDING'" json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
