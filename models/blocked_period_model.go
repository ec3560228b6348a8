package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	BlockReasonBooked  = "booked"
	BlockReasonBlocked = "blocked"
)

// BlockedPeriod marks capacity consumed for a unit. Rows with reason
// "booked" mirror exactly one booking; "blocked" rows are manual blocks.
type BlockedPeriod struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UnitID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"unit_id"`
	UnitType  UnitType   `gorm:"size:20;not null" json:"unit_type"`
	BookingID *uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"booking_id,omitempty"`
	StartDate time.Time  `gorm:"not null;index" json:"start_date"`
	EndDate   time.Time  `gorm:"not null" json:"end_date"`
	Reason    string     `gorm:"size:20;not null" json:"reason"`
	Note      *string    `gorm:"type:text" json:"note,omitempty"`
	CreatedBy *uuid.UUID `gorm:"type:uuid" json:"created_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
