package handlers

import (
	"errors"
	"fmt"
	"log"
	"strconv"

	config "github.com/anjiri1684/staybook/configs"
	"github.com/anjiri1684/staybook/websocket"
	websocketcontrib "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

func GetMyNotifications(c *fiber.Ctx) error {
	userID, _, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	unreadOnly := c.Query("unread") == "true"

	items, err := deps.Notifications.ListForRecipient(c.UserContext(), userID, unreadOnly, limit)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(items)
}

func MarkNotificationRead(c *fiber.Ctx) error {
	userID, _, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	notificationID, ok := paramUUID(c, "notificationId")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid notification ID format"})
	}
	if err := deps.Notifications.MarkRead(c.UserContext(), userID, notificationID); err != nil {
		return respondServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func MarkAllNotificationsRead(c *fiber.Ctx) error {
	userID, _, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	updated, err := deps.Notifications.MarkAllRead(c.UserContext(), userID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"updated": updated})
}

// ServeWs authenticates the socket with a first {"type":"auth"} frame and
// then keeps it registered on the hub until the client goes away.
func ServeWs(c *websocketcontrib.Conn) {
	type AuthMessage struct {
		Type  string `json:"type"`
		Token string `json:"token"`
	}
	var authMsg AuthMessage
	if err := c.ReadJSON(&authMsg); err != nil || authMsg.Type != "auth" {
		log.Printf("WebSocket auth failed: invalid or missing auth message, error: %v", err)
		_ = c.WriteJSON(fiber.Map{"error": "Invalid or missing auth message"})
		c.Close()
		return
	}

	claims, err := parseToken(authMsg.Token)
	if err != nil {
		log.Printf("WebSocket auth failed: invalid token, error: %v", err)
		_ = c.WriteJSON(fiber.Map{"error": "Invalid token"})
		c.Close()
		return
	}
	rawID, _ := claims["user_id"].(string)
	userID, err := uuid.Parse(rawID)
	if err != nil {
		log.Printf("WebSocket auth failed: invalid user_id %v", claims["user_id"])
		_ = c.WriteJSON(fiber.Map{"error": "Invalid user ID"})
		c.Close()
		return
	}

	if err := c.WriteJSON(fiber.Map{"type": "auth_ok"}); err != nil {
		c.Close()
		return
	}
	client := &websocket.Client{UserID: userID, Conn: c}
	deps.Hub.Register <- client
	defer func() {
		deps.Hub.Unregister <- client
		c.Close()
	}()

	for {
		var msg map[string]any
		if err := c.ReadJSON(&msg); err != nil {
			if websocketcontrib.IsCloseError(err, websocketcontrib.CloseGoingAway, websocketcontrib.CloseAbnormalClosure) {
				log.Printf("WebSocket closed for client %s: %v", userID, err)
			} else {
				log.Printf("WebSocket read error for client %s: %v", userID, err)
			}
			return
		}
		if msg["type"] == "ping" {
			_ = deps.Hub.Publish(userID, fiber.Map{"type": "pong"})
		}
	}
}

func parseToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(config.Config("JWT_SECRET")), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}
