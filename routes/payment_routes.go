package routes

import (
	"github.com/anjiri1684/staybook/handlers"
	"github.com/anjiri1684/staybook/middleware"
	"github.com/gofiber/fiber/v2"
)

func PaymentRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	api.Post("/payments/mpesa/webhook", handlers.HandleMpesaWebhook)

	paypal := api.Group("/payments/paypal", middleware.Protected())
	paypal.Post("/capture-order", handlers.CapturePayPalOrder)
}
