package handlers

import (
	"fmt"
	"log"

	"github.com/anjiri1684/staybook/models"
	"github.com/gofiber/fiber/v2"
)

type InitiatePaymentRequest struct {
	Method           string `json:"method" validate:"required,oneof=card paypal mpesa pay_at_pickup bank_transfer"`
	MpesaPhoneNumber string `json:"mpesa_phone_number,omitempty"`
}

func InitiatePayment(c *fiber.Ctx) error {
	userID, role, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	bookingID, ok := paramUUID(c, "bookingId")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid booking ID format"})
	}

	var req InitiatePaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if req.Method == models.MethodMpesa && req.MpesaPhoneNumber == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "M-Pesa phone number is required"})
	}

	booking, err := deps.Bookings.Get(c.UserContext(), bookingID, userID, role)
	if err != nil {
		return respondServiceError(c, err)
	}
	if booking.CustomerID != userID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Only the customer can pay for a booking"})
	}

	result, err := deps.Payments.InitiatePayment(c.UserContext(), bookingID, req.Method, map[string]string{
		"phone": req.MpesaPhoneNumber,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"payment": result})
}

type KcbWebhookPayload struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string      `json:"Name"`
					Value interface{} `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
			Reference string `json:"Reference"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

func (p KcbWebhookPayload) receipt() string {
	for _, item := range p.Body.StkCallback.CallbackMetadata.Item {
		if item.Name == "MpesaReceiptNumber" {
			switch v := item.Value.(type) {
			case string:
				return v
			case float64:
				return fmt.Sprintf("%.0f", v)
			}
		}
	}
	return ""
}

// HandleMpesaWebhook receives the STK push result. Gateway retries are
// answered 200 once the booking is confirmed.
func HandleMpesaWebhook(c *fiber.Ctx) error {
	var payload KcbWebhookPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse webhook payload"})
	}
	stk := payload.Body.StkCallback
	log.Printf("Received webhook for MerchantRequestID: %s, CheckoutRequestID: %s, ResultCode: %d",
		stk.MerchantRequestID, stk.CheckoutRequestID, stk.ResultCode)

	if stk.ResultCode != 0 {
		if err := deps.Payments.MarkPaymentFailed(c.UserContext(), stk.CheckoutRequestID, stk.ResultDesc); err != nil {
			return respondServiceError(c, err)
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "Acknowledged failed payment"})
	}

	receipt := payload.receipt()
	if receipt == "" {
		receipt = stk.CheckoutRequestID
	}
	booking, err := deps.Payments.ConfirmByGatewayRef(c.UserContext(), stk.CheckoutRequestID, receipt)
	if err != nil {
		log.Printf("🔥 CRITICAL: Error processing successful webhook for %s: %v", stk.CheckoutRequestID, err)
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "Webhook processed successfully", "status": booking.Status})
}

func CapturePayPalOrder(c *fiber.Ctx) error {
	type CaptureRequest struct {
		OrderID string `json:"orderID" validate:"required"`
	}
	var req CaptureRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	if _, err := deps.Payments.FindByGatewayRef(c.UserContext(), req.OrderID); err != nil {
		return respondServiceError(c, err)
	}
	if deps.PayPal == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "PayPal is not configured"})
	}

	capturedOrder, err := deps.PayPal.CaptureOrder(c.UserContext(), req.OrderID)
	if err != nil {
		log.Printf("🔥 PayPal capture failed for order %s: %v", req.OrderID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "Failed to capture PayPal order"})
	}
	if capturedOrder.Status != "COMPLETED" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Order not completed on PayPal's end"})
	}

	booking, err := deps.Payments.ConfirmByGatewayRef(c.UserContext(), req.OrderID, capturedOrder.CaptureID())
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"status": "success", "message": "Payment captured and booking confirmed", "booking": booking})
}

// UploadTransferProof accepts the "proof" file of a bank transfer.
func UploadTransferProof(c *fiber.Ctx) error {
	userID, _, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	bookingID, ok := paramUUID(c, "bookingId")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid booking ID format"})
	}

	fileHeader, err := c.FormFile("proof")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "A proof file is required"})
	}
	if fileHeader.Size > 10<<20 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Proof file must be under 10MB"})
	}
	file, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot read proof file"})
	}
	defer file.Close()

	payment, err := deps.Payments.AttachTransferProof(c.UserContext(), bookingID, userID, file)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Proof received, an admin will review it shortly.", "payment": payment})
}
