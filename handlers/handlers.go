package handlers

import (
	"errors"
	"log"
	"time"

	"github.com/anjiri1684/staybook/middleware"
	"github.com/anjiri1684/staybook/payments"
	"github.com/anjiri1684/staybook/services"
	"github.com/anjiri1684/staybook/websocket"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

var validate = validator.New()

// Deps are the services the HTTP layer calls into.
type Deps struct {
	Availability  *services.AvailabilityService
	Reservations  *services.ReservationService
	Settlement    *services.SettlementService
	Payments      *services.PaymentService
	Notifications *services.NotificationService
	Providers     *services.ProviderService
	Vouchers      *services.VoucherService
	Bookings      *services.BookingQueries
	Mailer        services.Mailer
	Uploader      *services.CloudinaryUploader
	Rates         *services.ExchangeRates
	PayPal        *payments.PayPalGateway
	Hub           *websocket.Hub
}

var deps Deps

func Setup(d Deps) {
	deps = d
}

const conflictMessage = "these dates just became unavailable, please choose again"

// respondServiceError maps the service error taxonomy onto HTTP responses.
func respondServiceError(c *fiber.Ctx, err error) error {
	var (
		conflict   services.ConflictError
		validation services.ValidationError
		notFound   services.NotFoundError
		infra      services.InfrastructureError
	)
	switch {
	case errors.As(err, &conflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":     conflictMessage,
			"code":      services.ConflictCode,
			"conflicts": conflict.Conflicts,
		})
	case errors.As(err, &validation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": validation.Error(), "field": validation.Field})
	case errors.As(err, &notFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": notFound.Error()})
	case errors.As(err, &infra):
		log.Printf("🔥 %s | Path: %s", infra.Error(), c.Path())
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error":     "The service is temporarily unavailable, please try again.",
			"retryable": true,
		})
	}
	log.Printf("[ERROR] %v | Path: %s | Method: %s", err, c.Path(), c.Method())
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
}

func currentUser(c *fiber.Ctx) (uuid.UUID, string, bool) {
	userID, role, err := middleware.CurrentUser(c)
	return userID, role, err == nil
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
}

func paramUUID(c *fiber.Ctx, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params(name))
	return id, err == nil
}

// parseDay accepts a calendar date or an RFC 3339 instant.
func parseDay(value string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, value)
}
