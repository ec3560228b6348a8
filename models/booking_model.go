package models

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingPendingPayment BookingStatus = "PENDING_PAYMENT"
	BookingPending        BookingStatus = "PENDING"
	BookingConfirmed      BookingStatus = "CONFIRMED"
	BookingCancelled      BookingStatus = "CANCELLED"
)

// ActiveBookingStatuses consume unit capacity.
var ActiveBookingStatuses = []BookingStatus{BookingPendingPayment, BookingPending, BookingConfirmed}

func (s BookingStatus) IsActive() bool {
	return s == BookingPendingPayment || s == BookingPending || s == BookingConfirmed
}

func (s BookingStatus) IsTerminal() bool {
	return s == BookingConfirmed || s == BookingCancelled
}

// CanTransition reports whether the booking state machine allows from -> to.
// CONFIRMED -> CANCELLED is allowed so confirmed stays can release capacity.
func CanTransition(from, to BookingStatus) bool {
	switch to {
	case BookingPending:
		return from == BookingPendingPayment || from == BookingPending
	case BookingConfirmed:
		return from == BookingPendingPayment || from == BookingPending
	case BookingCancelled:
		return from.IsActive()
	}
	return false
}

type Booking struct {
	ID               uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	BookingNumber    string        `gorm:"size:40;not null;uniqueIndex" json:"booking_number"`
	ConfirmationCode string        `gorm:"size:16;not null;uniqueIndex" json:"confirmation_code"`
	CustomerID       uuid.UUID     `gorm:"type:uuid;not null;index" json:"customer_id"`
	ProviderID       uuid.UUID     `gorm:"type:uuid;not null;index" json:"provider_id"`
	UnitID           uuid.UUID     `gorm:"type:uuid;not null;index:idx_booking_unit_range" json:"unit_id"`
	UnitType         UnitType      `gorm:"size:20;not null;index:idx_booking_unit_range" json:"unit_type"`
	StartDate        time.Time     `gorm:"not null;index:idx_booking_unit_range" json:"start_date"`
	EndDate          time.Time     `gorm:"not null" json:"end_date"`
	Total            float64       `gorm:"type:numeric(12,2);not null" json:"total"`
	Currency         string        `gorm:"size:3;not null" json:"currency"`
	PriceBreakdown   string        `gorm:"type:text" json:"price_breakdown"`
	Status           BookingStatus `gorm:"size:20;not null;default:'PENDING_PAYMENT';index" json:"status"`
	PaymentStatus    PaymentStatus `gorm:"size:20;not null;default:'PENDING'" json:"payment_status"`
	PaymentMethod    *string       `gorm:"size:30" json:"payment_method,omitempty"`

	RevenueCreditedAt  *time.Time `json:"revenue_credited_at,omitempty"`
	ConfirmedAt        *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason *string    `gorm:"type:text" json:"cancellation_reason,omitempty"`
	VoucherURL         *string    `gorm:"type:text" json:"voucher_url,omitempty"`

	Unit InventoryUnit `gorm:"foreignKey:UnitID" json:"unit,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsSingleDay is true for tour bookings, stored with EndDate == StartDate.
func (b Booking) IsSingleDay() bool {
	return !b.EndDate.After(b.StartDate)
}
