package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"
)

const transferProofFolder = "staybook_transfer_proofs"

// GenerateUploadSignature signs a direct browser upload into the transfer
// proof folder.
func GenerateUploadSignature(c *fiber.Ctx) error {
	if deps.Uploader == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Uploads are not configured"})
	}
	sig, err := deps.Uploader.Sign(transferProofFolder)
	if err != nil {
		log.Printf("Failed to sign upload params: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to sign upload params"})
	}
	return c.JSON(sig)
}
