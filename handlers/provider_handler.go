package handlers

import (
	"github.com/anjiri1684/staybook/models"
	"github.com/anjiri1684/staybook/services"
	"github.com/gofiber/fiber/v2"
)

type CreateUnitRequest struct {
	UnitType  string  `json:"unit_type" validate:"required,oneof=property vehicle tour"`
	Title     string  `json:"title" validate:"required,max=255"`
	Capacity  int     `json:"capacity" validate:"omitempty,min=1"`
	BasePrice float64 `json:"base_price" validate:"required,gt=0"`
	Currency  string  `json:"currency" validate:"omitempty,len=3"`
}

func CreateUnit(c *fiber.Ctx) error {
	providerID, _, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	var req CreateUnitRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	unit, err := deps.Providers.CreateUnit(c.UserContext(), providerID, services.UnitInput{
		UnitType:  models.UnitType(req.UnitType),
		Title:     req.Title,
		Capacity:  req.Capacity,
		BasePrice: req.BasePrice,
		Currency:  req.Currency,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(unit)
}

func GetMyUnits(c *fiber.Ctx) error {
	providerID, _, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	units, err := deps.Providers.ListUnits(c.UserContext(), providerID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(units)
}

func UpdateUnitStatus(c *fiber.Ctx) error {
	providerID, _, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	unitID, ok := paramUUID(c, "unitId")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid unit ID format"})
	}
	type StatusRequest struct {
		IsActive *bool `json:"is_active" validate:"required"`
	}
	var req StatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	unit, err := deps.Providers.SetUnitActive(c.UserContext(), providerID, unitID, *req.IsActive)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(unit)
}

type BlockDatesRequest struct {
	StartDate string `json:"start_date" validate:"required"`
	EndDate   string `json:"end_date" validate:"required"`
	Note      string `json:"note" validate:"max=500"`
}

func CreateBlockedPeriod(c *fiber.Ctx) error {
	providerID, _, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	unitID, ok := paramUUID(c, "unitId")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid unit ID format"})
	}
	var req BlockDatesRequest
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
	end, err := parseDay(req.EndDate)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid end_date"})
	}

	period, err := deps.Providers.BlockDates(c.UserContext(), services.BlockRequest{
		ProviderID: providerID,
		UnitID:     unitID,
		Start:      start,
		End:        end,
		Note:       req.Note,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(period)
}

func DeleteBlockedPeriod(c *fiber.Ctx) error {
	providerID, _, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	blockID, ok := paramUUID(c, "blockId")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid block ID format"})
	}
	if err := deps.Providers.UnblockDates(c.UserContext(), providerID, blockID); err != nil {
		return respondServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func GetRevenueSummary(c *fiber.Ctx) error {
	providerID, _, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	summary, err := deps.Providers.RevenueSummary(c.UserContext(), providerID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(summary)
}

func RequestPayout(c *fiber.Ctx) error {
	providerID, _, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	type PayoutRequest struct {
		Amount   float64 `json:"amount" validate:"required,gt=0"`
		Currency string  `json:"currency" validate:"required,len=3"`
	}
	var req PayoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	payout, err := deps.Providers.RequestPayout(c.UserContext(), providerID, req.Amount, req.Currency)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(payout)
}

func GetMyPayoutRequests(c *fiber.Ctx) error {
	providerID, _, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	requests, err := deps.Providers.ListPayouts(c.UserContext(), &providerID, c.Query("status"))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(requests)
}
