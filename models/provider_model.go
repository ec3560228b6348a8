package models

import (
	"time"

	"github.com/google/uuid"
)

// Provider is the seller side of a booking. RevenueBalance is only ever
// changed through gorm.Expr increments.
type Provider struct {
	UserID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	DisplayName    string    `gorm:"size:255;not null" json:"display_name"`
	CommissionRate *float64  `gorm:"type:numeric(5,4)" json:"commission_rate"`
	RevenueBalance float64   `gorm:"type:numeric(12,2);default:0.00" json:"revenue_balance"`
	TotalEarnings  float64   `gorm:"type:numeric(12,2);default:0.00" json:"total_earnings"`
	Status         string    `gorm:"size:20;not null;default:'active'" json:"status"`

	User      User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}
