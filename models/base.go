package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// assignID fills an empty primary key so rows can be created on engines
// without gen_random_uuid().
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	assignID(&u.ID)
	return nil
}

func (u *InventoryUnit) BeforeCreate(tx *gorm.DB) error {
	assignID(&u.ID)
	return nil
}

func (b *Booking) BeforeCreate(tx *gorm.DB) error {
	assignID(&b.ID)
	return nil
}

func (p *BlockedPeriod) BeforeCreate(tx *gorm.DB) error {
	assignID(&p.ID)
	return nil
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	assignID(&p.ID)
	return nil
}

func (c *Commission) BeforeCreate(tx *gorm.DB) error {
	assignID(&c.ID)
	return nil
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	assignID(&n.ID)
	return nil
}

func (p *PayoutRequest) BeforeCreate(tx *gorm.DB) error {
	assignID(&p.ID)
	return nil
}
