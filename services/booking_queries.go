package services

import (
	"context"
	"errors"

	"github.com/anjiri1684/staybook/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BookingQueries is the read side used by listing endpoints.
type BookingQueries struct {
	db *gorm.DB
}

func NewBookingQueries(db *gorm.DB) *BookingQueries {
	return &BookingQueries{db: db}
}

type BookingFilter struct {
	CustomerID *uuid.UUID
	ProviderID *uuid.UUID
	Status     models.BookingStatus
	Page       int
	PageSize   int
}

func (q *BookingQueries) List(ctx context.Context, f BookingFilter) ([]models.Booking, int64, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 100 {
		f.PageSize = 20
	}

	query := q.db.WithContext(ctx).Model(&models.Booking{})
	if f.CustomerID != nil {
		query = query.Where("customer_id = ?", *f.CustomerID)
	}
	if f.ProviderID != nil {
		query = query.Where("provider_id = ?", *f.ProviderID)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, InfrastructureError{Op: "count bookings", Err: err}
	}

	var bookings []models.Booking
	err := query.Preload("Unit").
		Order("created_at DESC").
		Limit(f.PageSize).
		Offset((f.Page - 1) * f.PageSize).
		Find(&bookings).Error
	if err != nil {
		return nil, 0, InfrastructureError{Op: "list bookings", Err: err}
	}
	return bookings, total, nil
}

// Get returns a booking visible to the actor: its customer, its provider
// or an admin.
func (q *BookingQueries) Get(ctx context.Context, bookingID, actorID uuid.UUID, role string) (*models.Booking, error) {
	var booking models.Booking
	if err := q.db.WithContext(ctx).Preload("Unit").First(&booking, "id = ?", bookingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundError{Resource: "booking", Err: err}
		}
		return nil, InfrastructureError{Op: "load booking", Err: err}
	}
	if !canActOn(&booking, actorID, role) {
		return nil, NotFoundError{Resource: "booking"}
	}
	return &booking, nil
}

// PendingApprovals lists offline-paid bookings waiting for an admin.
func (q *BookingQueries) PendingApprovals(ctx context.Context) ([]models.Booking, error) {
	var bookings []models.Booking
	err := q.db.WithContext(ctx).
		Where("status = ? AND payment_method IN ?", models.BookingPending, []string{models.MethodPayAtPickup, models.MethodBankTransfer}).
		Order("created_at ASC").
		Find(&bookings).Error
	if err != nil {
		return nil, InfrastructureError{Op: "list pending approvals", Err: err}
	}
	return bookings, nil
}

func (q *BookingQueries) Payments(ctx context.Context, bookingID uuid.UUID) ([]models.Payment, error) {
	var list []models.Payment
	if err := q.db.WithContext(ctx).Where("booking_id = ?", bookingID).Order("created_at ASC").Find(&list).Error; err != nil {
		return nil, InfrastructureError{Op: "list payments", Err: err}
	}
	return list, nil
}
