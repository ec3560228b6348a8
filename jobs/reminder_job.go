package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/anjiri1684/staybook/models"
	"github.com/anjiri1684/staybook/services"
	"gorm.io/gorm"
)

type notifier interface {
	Notify(ctx context.Context, in services.NotifyInput) (*models.Notification, error)
}

// SendCheckInReminders notifies customers whose confirmed booking starts
// within the next 24 hours. A booking is reminded at most once.
func SendCheckInReminders(ctx context.Context, db *gorm.DB, n notifier) int {
	log.Println("Running job: SendCheckInReminders...")

	now := time.Now().UTC()
	var upcoming []models.Booking
	err := db.WithContext(ctx).
		Preload("Unit").
		Where("status = ? AND start_date >= ? AND start_date < ?", models.BookingConfirmed, now, now.Add(24*time.Hour)).
		Find(&upcoming).Error
	if err != nil {
		log.Printf("Error checking for upcoming bookings: %v", err)
		return 0
	}

	sent := 0
	for _, booking := range upcoming {
		actionURL := "/bookings/" + booking.ID.String()

		var already int64
		err := db.WithContext(ctx).Model(&models.Notification{}).
			Where("recipient_id = ? AND type = ? AND action_url = ?", booking.CustomerID, models.NotifCheckInReminder, actionURL).
			Count(&already).Error
		if err != nil {
			log.Printf("Error checking reminder for %s: %v", booking.BookingNumber, err)
			continue
		}
		if already > 0 {
			continue
		}

		_, err = n.Notify(ctx, services.NotifyInput{
			RecipientID: booking.CustomerID,
			Role:        models.RoleCustomer,
			Type:        models.NotifCheckInReminder,
			Title:       "Your booking starts soon",
			Message: fmt.Sprintf("Reminder: %s starts on %s. Confirmation code %s.",
				booking.Unit.Title, booking.StartDate.UTC().Format("Mon, 02 Jan 2006"), booking.ConfirmationCode),
			ActionURL: actionURL,
			Priority:  models.PriorityNormal,
			SendEmail: true,
		})
		if err != nil {
			log.Printf("Error sending reminder for booking %s: %v", booking.BookingNumber, err)
			continue
		}
		sent++
	}
	return sent
}
