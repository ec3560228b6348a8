package models

import (
	"time"

	"github.com/google/uuid"
)

type UnitType string

const (
	UnitProperty UnitType = "property"
	UnitVehicle  UnitType = "vehicle"
	UnitTour     UnitType = "tour"
)

func (t UnitType) Valid() bool {
	switch t {
	case UnitProperty, UnitVehicle, UnitTour:
		return true
	}
	return false
}

// InventoryUnit is one bookable item: a property with N room units, a
// vehicle or a tour offering.
type InventoryUnit struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProviderID   uuid.UUID `gorm:"type:uuid;not null;index" json:"provider_id"`
	UnitType     UnitType  `gorm:"size:20;not null;index" json:"unit_type"`
	Title        string    `gorm:"size:255;not null" json:"title"`
	Capacity     int       `gorm:"not null;default:1" json:"capacity"`
	BasePrice    float64   `gorm:"type:numeric(12,2);not null" json:"base_price"`
	Currency     string    `gorm:"size:3;not null;default:'USD'" json:"currency"`
	BookingCount int64     `gorm:"not null;default:0" json:"booking_count"`
	IsActive     bool      `gorm:"not null;default:true" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EffectiveCapacity is the number of concurrent bookings the unit can hold.
// Vehicles and tours are single-capacity.
func (u InventoryUnit) EffectiveCapacity() int {
	if u.UnitType != UnitProperty {
		return 1
	}
	if u.Capacity < 1 {
		return 1
	}
	return u.Capacity
}
