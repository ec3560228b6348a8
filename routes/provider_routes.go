package routes

import (
	"github.com/anjiri1684/staybook/handlers"
	"github.com/anjiri1684/staybook/middleware"
	"github.com/gofiber/fiber/v2"
)

func ProviderRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	provider := api.Group("/provider", middleware.Protected(), middleware.ProviderRequired())

	units := provider.Group("/units")
	units.Post("", handlers.CreateUnit)
	units.Get("", handlers.GetMyUnits)
	units.Put("/:unitId/status", handlers.UpdateUnitStatus)
	units.Post("/:unitId/blocks", handlers.CreateBlockedPeriod)
	provider.Delete("/blocks/:blockId", handlers.DeleteBlockedPeriod)

	provider.Get("/revenue", handlers.GetRevenueSummary)
	provider.Post("/payout-requests", handlers.RequestPayout)
	provider.Get("/payout-requests", handlers.GetMyPayoutRequests)
}
