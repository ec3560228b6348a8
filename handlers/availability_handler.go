package handlers

import (
	"strconv"

	"github.com/anjiri1684/staybook/models"
	"github.com/anjiri1684/staybook/services"
	"github.com/gofiber/fiber/v2"
)

// CheckAvailability is the quote-time check behind the date picker.
// GET /units/:unitId/availability?unit_type=&start_date=&end_date=&capacity=
func CheckAvailability(c *fiber.Ctx) error {
	unitID, ok := paramUUID(c, "unitId")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid unit ID format"})
	}

	start, err := parseDay(c.Query("start_date"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid start_date"})
	}
	end := start
	if raw := c.Query("end_date"); raw != "" {
		if end, err = parseDay(raw); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid end_date"})
		}
	}
	capacity, _ := strconv.Atoi(c.Query("capacity", "1"))

	result, err := deps.Availability.CheckAvailability(c.UserContext(), services.AvailabilityQuery{
		UnitID:           unitID,
		UnitType:         models.UnitType(c.Query("unit_type")),
		Start:            start,
		End:              end,
		RequiredCapacity: capacity,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(result)
}

// GetUnitCalendar returns blocks and active bookings for a unit, for
// calendar and ICS export.
func GetUnitCalendar(c *fiber.Ctx) error {
	unitID, ok := paramUUID(c, "unitId")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid unit ID format"})
	}
	from, err := parseDay(c.Query("from"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid from date"})
	}
	to, err := parseDay(c.Query("to"))
	if err != nil || !to.After(from) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid to date"})
	}

	entries, err := deps.Providers.Calendar(c.UserContext(), unitID, from, to)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"unit_id": unitID, "entries": entries})
}
