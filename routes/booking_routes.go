package routes

import (
	"github.com/anjiri1684/staybook/handlers"
	"github.com/anjiri1684/staybook/middleware"
	"github.com/gofiber/fiber/v2"
)

func BookingRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	booking := api.Group("/bookings", middleware.Protected())
	booking.Get("/me", handlers.GetMyBookings)
	booking.Post("", handlers.CreateBooking)
	booking.Get("/:bookingId", handlers.GetBooking)
	booking.Post("/:bookingId/cancel", handlers.CancelBooking)
	booking.Get("/:bookingId/voucher", handlers.GetBookingVoucher)
	booking.Post("/:bookingId/pay", handlers.InitiatePayment)
	booking.Post("/:bookingId/transfer-proof", handlers.UploadTransferProof)
}
