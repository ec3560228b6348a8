package jobs

import (
	"context"
	"log"
	"time"

	"github.com/anjiri1684/staybook/models"
	"github.com/anjiri1684/staybook/services"
	"gorm.io/gorm"
)

type bookingCanceller interface {
	CancelBooking(ctx context.Context, req services.CancelRequest) (*models.Booking, error)
}

// ExpireStaleReservations cancels bookings that sat in PENDING_PAYMENT for
// longer than ttl so their dates return to the pool. It returns the number
// of bookings it cancelled.
func ExpireStaleReservations(ctx context.Context, db *gorm.DB, canceller bookingCanceller, ttl time.Duration) int {
	log.Println("Running job: ExpireStaleReservations...")

	cutoff := time.Now().UTC().Add(-ttl)
	var stale []models.Booking
	err := db.WithContext(ctx).
		Select("id", "booking_number").
		Where("status = ? AND created_at < ?", models.BookingPendingPayment, cutoff).
		Order("created_at ASC").
		Limit(200).
		Find(&stale).Error
	if err != nil {
		log.Printf("Error loading stale reservations: %v", err)
		return 0
	}
	if len(stale) == 0 {
		return 0
	}

	expired := 0
	for _, booking := range stale {
		_, err := canceller.CancelBooking(ctx, services.CancelRequest{
			BookingID: booking.ID,
			ActorRole: services.RoleSystem,
			Reason:    "payment not received in time",
			OnlyIf:    models.BookingPendingPayment,
		})
		if err != nil {
			if services.IsValidation(err) {
				continue
			}
			log.Printf("Error expiring reservation %s: %v", booking.BookingNumber, err)
			continue
		}
		expired++
	}

	log.Printf("Expired %d stale reservation(s).", expired)
	return expired
}
