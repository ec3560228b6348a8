package models

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotifReservationCreated NotificationType = "reservation_created"
	NotifNewReservation     NotificationType = "new_reservation"
	NotifBookingConfirmed   NotificationType = "booking_confirmed"
	NotifPaymentReceived    NotificationType = "payment_received"
	NotifBookingCancelled   NotificationType = "booking_cancelled"
	NotifApprovalRequired   NotificationType = "payment_approval_required"
	NotifPaymentFailed      NotificationType = "payment_failed"
	NotifCheckInReminder    NotificationType = "check_in_reminder"
	NotifPayoutProcessed    NotificationType = "payout_processed"
	NotifPayoutRejected     NotificationType = "payout_rejected"
)

const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

type Notification struct {
	ID            uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	RecipientID   uuid.UUID        `gorm:"type:uuid;not null;index" json:"recipient_id"`
	RecipientRole string           `gorm:"size:20;not null" json:"recipient_role"`
	Type          NotificationType `gorm:"size:50;not null" json:"type"`
	Title         string           `gorm:"size:255;not null" json:"title"`
	Message       string           `gorm:"type:text" json:"message"`
	ActionURL     *string          `gorm:"size:255" json:"action_url,omitempty"`
	Payload       *string          `gorm:"type:text" json:"payload,omitempty"`
	Priority      string           `gorm:"size:10;not null;default:'normal'" json:"priority"`
	IsRead        bool             `gorm:"not null;default:false" json:"is_read"`
	ReadAt        *time.Time       `json:"read_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
