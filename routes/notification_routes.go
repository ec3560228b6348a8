package routes

import (
	"github.com/anjiri1684/staybook/handlers"
	"github.com/anjiri1684/staybook/middleware"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

func NotificationRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	notifications := api.Group("/notifications", middleware.Protected())
	notifications.Get("", handlers.GetMyNotifications)
	notifications.Post("/read-all", handlers.MarkAllNotificationsRead)
	notifications.Post("/:notificationId/read", handlers.MarkNotificationRead)

	api.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	})
	api.Get("/ws", websocket.New(handlers.ServeWs))
}
