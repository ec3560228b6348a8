package utils

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/anjiri1684/staybook/models"
	"gorm.io/gorm"
)

const (
	confirmationCodeLength = 8
	bookingSuffixLength    = 6
	letterBytes            = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	maxCodeAttempts        = 10
)

var (
	seededRand = rand.New(rand.NewSource(time.Now().UnixNano()))
	randMu     sync.Mutex
)

func randomCode(n int) string {
	randMu.Lock()
	defer randMu.Unlock()

	b := make([]byte, n)
	for i := range b {
		b[i] = letterBytes[seededRand.Intn(len(letterBytes))]
	}
	return string(b)
}

// GenerateUniqueBookingNumber returns BK-<timestamp>-<suffix>, checked
// against existing bookings on tx.
func GenerateUniqueBookingNumber(tx *gorm.DB, now time.Time) (string, error) {
	return generateUnique(tx, "booking_number", func() string {
		return fmt.Sprintf("BK-%s-%s", now.UTC().Format("20060102150405"), randomCode(bookingSuffixLength))
	})
}

// GenerateUniqueConfirmationCode returns an 8 character code the customer
// presents at check-in.
func GenerateUniqueConfirmationCode(tx *gorm.DB) (string, error) {
	return generateUnique(tx, "confirmation_code", func() string {
		return randomCode(confirmationCodeLength)
	})
}

func generateUnique(tx *gorm.DB, column string, next func() string) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code := next()

		var count int64
		if err := tx.Model(&models.Booking{}).Where(column+" = ?", code).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return code, nil
		}
	}
	return "", fmt.Errorf("could not generate a unique %s after %d attempts", column, maxCodeAttempts)
}
