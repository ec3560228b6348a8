package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	PayoutPending  = "pending"
	PayoutComplete = "complete"
	PayoutRejected = "reject"
)

type PayoutRequest struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ProviderID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"provider_id"`
	Amount      float64    `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency    string     `gorm:"size:3;not null" json:"currency"`
	Status      string     `gorm:"size:20;not null;default:'pending'" json:"status"`
	AdminNotes  *string    `gorm:"type:text" json:"admin_notes,omitempty"`
	RequestedAt time.Time  `gorm:"not null" json:"requested_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}
