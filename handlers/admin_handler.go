package handlers

import (
	"strconv"

	"github.com/anjiri1684/staybook/models"
	"github.com/anjiri1684/staybook/services"
	"github.com/gofiber/fiber/v2"
)

func ListPendingApprovals(c *fiber.Ctx) error {
	bookings, err := deps.Bookings.PendingApprovals(c.UserContext())
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(bookings)
}

func ApproveOfflinePayment(c *fiber.Ctx) error {
	adminID, _, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	bookingID, ok := paramUUID(c, "bookingId")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid booking ID format"})
	}

	type ApproveRequest struct {
		Reference string `json:"reference" validate:"max=255"`
	}
	var req ApproveRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
		}
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	booking, err := deps.Payments.ApproveOfflinePayment(c.UserContext(), bookingID, adminID, req.Reference)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Payment approved and booking confirmed", "booking": booking})
}

// ConfirmPayment records a confirmation received out of band, for example
// from a card processor's dashboard.
func ConfirmPayment(c *fiber.Ctx) error {
	bookingID, ok := paramUUID(c, "bookingId")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid booking ID format"})
	}

	type ConfirmRequest struct {
		Method    string `json:"method" validate:"required"`
		Reference string `json:"reference" validate:"required"`
	}
	var req ConfirmRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	booking, err := deps.Payments.ConfirmPayment(c.UserContext(), bookingID, req.Method, req.Reference)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"booking": booking})
}

func RetrySettlement(c *fiber.Ctx) error {
	bookingID, ok := paramUUID(c, "bookingId")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid booking ID format"})
	}

	err := deps.Settlement.RetrySettlement(c.UserContext(), bookingID)
	if services.IsSettlementSideEffect(err) {
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"message": "Settlement partially applied, retry again later", "error": err.Error()})
	}
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Settlement completed"})
}

func AdminGetAllBookings(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	pageSize, _ := strconv.Atoi(c.Query("page_size", "20"))

	bookings, total, err := deps.Bookings.List(c.UserContext(), services.BookingFilter{
		Status:   models.BookingStatus(c.Query("status")),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"data": bookings, "total": total, "page": page})
}

func ListPayoutRequests(c *fiber.Ctx) error {
	requests, err := deps.Providers.ListPayouts(c.UserContext(), nil, c.Query("status", models.PayoutPending))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(requests)
}

func ProcessPayoutRequest(c *fiber.Ctx) error {
	requestID, ok := paramUUID(c, "requestId")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request ID format"})
	}

	type ProcessRequest struct {
		Decision   string `json:"decision" validate:"required,oneof=complete reject"`
		AdminNotes string `json:"admin_notes"`
	}
	var req ProcessRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	payout, err := deps.Providers.ProcessPayout(c.UserContext(), requestID, req.Decision, req.AdminNotes)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Payout request processed.", "payout": payout})
}
