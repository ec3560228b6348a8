package handlers

import (
	"strings"

	"github.com/anjiri1684/staybook/database"
	"github.com/anjiri1684/staybook/models"
	"github.com/gofiber/fiber/v2"
)

type UpdateProfileRequest struct {
	FullName *string `json:"full_name" validate:"omitempty,min=3,max=255"`
	Phone    *string `json:"phone" validate:"omitempty,max=32"`
}

func GetProfile(c *fiber.Ctx) error {
	userID, _, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}

	var user models.User
	if err := database.DB.WithContext(c.UserContext()).Where("id = ?", userID).First(&user).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
	}
	return c.JSON(user)
}

func UpdateProfile(c *fiber.Ctx) error {
	userID, _, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}

	var req UpdateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var user models.User
	if err := database.DB.WithContext(c.UserContext()).Where("id = ?", userID).First(&user).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
	}

	updates := map[string]interface{}{}
	if req.FullName != nil {
		updates["full_name"] = strings.TrimSpace(*req.FullName)
	}
	if req.Phone != nil {
		updates["phone"] = strings.TrimSpace(*req.Phone)
	}
	if len(updates) > 0 {
		if err := database.DB.WithContext(c.UserContext()).Model(&user).Updates(updates).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update profile"})
		}
	}
	return c.JSON(user)
}
