package handlers

import (
	"github.com/gofiber/fiber/v2"
)

func GetConversionRate(c *fiber.Ctx) error {
	if deps.Rates == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Exchange rates are not configured"})
	}
	rates, err := deps.Rates.Rates(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Could not fetch exchange rates"})
	}

	kesRate, ok := rates["KES"]
	if !ok {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "KES rate not available"})
	}
	return c.JSON(fiber.Map{"usd_to_kes": kesRate})
}
