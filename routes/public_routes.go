package routes

import (
	"github.com/anjiri1684/staybook/handlers"
	"github.com/gofiber/fiber/v2"
)

func PublicRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	api.Get("/units/:unitId/availability", handlers.CheckAvailability)
	api.Get("/units/:unitId/calendar", handlers.GetUnitCalendar)
	api.Get("/currency/rate", handlers.GetConversionRate)
}
