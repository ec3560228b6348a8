package handlers

import (
	"fmt"
	"math"
	"strconv"

	"github.com/anjiri1684/staybook/models"
	"github.com/anjiri1684/staybook/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// CreateBookingRequest carries no price: the server quotes the stay from
// the unit. Total, when sent, is the amount the customer was shown and
// must still match.
type CreateBookingRequest struct {
	UnitID    string  `json:"unit_id" validate:"required,uuid"`
	UnitType  string  `json:"unit_type" validate:"required,oneof=property vehicle tour"`
	StartDate string  `json:"start_date" validate:"required"`
	EndDate   string  `json:"end_date"`
	Total     float64 `json:"total" validate:"omitempty,gt=0"`
}

func CreateBooking(c *fiber.Ctx) error {
	customerID, _, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}

	var req CreateBookingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	start, err := parseDay(req.StartDate)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid start_date"})
	}
	end := start
	if req.EndDate != "" {
		if end, err = parseDay(req.EndDate); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid end_date"})
		}
	}
	unitID, _ := uuid.Parse(req.UnitID)
	unitType := models.UnitType(req.UnitType)

	price, err := deps.Reservations.Quote(c.UserContext(), unitID, unitType, start, end)
	if err != nil {
		return respondServiceError(c, err)
	}
	if req.Total > 0 && math.Abs(req.Total-price.Total) >= 0.01 {
		return respondServiceError(c, services.ValidationError{
			Field: "total",
			Msg:   fmt.Sprintf("price is %.2f %s, not %.2f", price.Total, price.Currency, req.Total),
		})
	}

	booking, err := deps.Reservations.CreateReservation(c.UserContext(), services.ReservationRequest{
		CustomerID:     customerID,
		UnitID:         unitID,
		UnitType:       unitType,
		Start:          start,
		End:            end,
		PriceBreakdown: price,
	})
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Reservation held. Complete payment to confirm it.",
		"booking": booking,
	})
}

func GetMyBookings(c *fiber.Ctx) error {
	userID, role, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	page, _ := strconv.Atoi(c.Query("page", "1"))
	pageSize, _ := strconv.Atoi(c.Query("page_size", "20"))

	filter := services.BookingFilter{
		Status:   models.BookingStatus(c.Query("status")),
		Page:     page,
		PageSize: pageSize,
	}
	if role == models.RoleProvider {
		filter.ProviderID = &userID
	} else {
		filter.CustomerID = &userID
	}

	bookings, total, err := deps.Bookings.List(c.UserContext(), filter)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"data": bookings, "total": total, "page": filter.Page})
}

func GetBooking(c *fiber.Ctx) error {
	userID, role, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	bookingID, ok := paramUUID(c, "bookingId")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid booking ID format"})
	}

	booking, err := deps.Bookings.Get(c.UserContext(), bookingID, userID, role)
	if err != nil {
		return respondServiceError(c, err)
	}
	paymentList, err := deps.Bookings.Payments(c.UserContext(), bookingID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"booking": booking, "payments": paymentList})
}

func CancelBooking(c *fiber.Ctx) error {
	userID, role, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	bookingID, ok := paramUUID(c, "bookingId")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid booking ID format"})
	}

	type CancelRequest struct {
		Reason string `json:"reason" validate:"max=500"`
	}
	var req CancelRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
		}
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	booking, err := deps.Payments.CancelBooking(c.UserContext(), services.CancelRequest{
		BookingID: bookingID,
		ActorID:   userID,
		ActorRole: role,
		Reason:    req.Reason,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Booking cancelled", "booking": booking})
}

// GetBookingVoucher returns the voucher URL, generating it on first request.
func GetBookingVoucher(c *fiber.Ctx) error {
	userID, role, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	bookingID, ok := paramUUID(c, "bookingId")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid booking ID format"})
	}
	if _, err := deps.Bookings.Get(c.UserContext(), bookingID, userID, role); err != nil {
		return respondServiceError(c, err)
	}
	if deps.Vouchers == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Vouchers are not available"})
	}

	voucherURL, err := deps.Vouchers.Generate(c.UserContext(), bookingID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"voucher_url": voucherURL})
}
