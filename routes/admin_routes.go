package routes

import (
	"github.com/anjiri1684/staybook/handlers"
	"github.com/anjiri1684/staybook/middleware"
	"github.com/gofiber/fiber/v2"
)

func AdminRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	admin := api.Group("/admin", middleware.Protected(), middleware.AdminRequired())

	admin.Get("/bookings", handlers.AdminGetAllBookings)
	admin.Get("/bookings/pending-approval", handlers.ListPendingApprovals)
	admin.Post("/bookings/:bookingId/approve-payment", handlers.ApproveOfflinePayment)
	admin.Post("/bookings/:bookingId/confirm-payment", handlers.ConfirmPayment)
	admin.Post("/bookings/:bookingId/settlement/retry", handlers.RetrySettlement)

	admin.Get("/payout-requests", handlers.ListPayoutRequests)
	admin.Post("/payout-requests/:requestId/process", handlers.ProcessPayoutRequest)
}
