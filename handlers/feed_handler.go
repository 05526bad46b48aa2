package handlers

import (
	"log"

	websocketcontrib "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/powerca/backoffice/middleware"
	"github.com/powerca/backoffice/models"
)

type feedAuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// ServeAdminFeed authenticates the socket with an {"type":"auth","token":...} first
// message, then streams verification and booking events until the client leaves.
func (h *Handler) ServeAdminFeed(c *websocketcontrib.Conn) {
	var authMsg feedAuthMessage
	if err := c.ReadJSON(&authMsg); err != nil || authMsg.Type != "auth" {
		log.Printf("Admin feed auth failed: invalid or missing auth message: %v", err)
		_ = c.WriteJSON(fiber.Map{"error": "Invalid or missing auth message"})
		c.Close()
		return
	}

	session, err := middleware.ParseToken(h.Settings.JWTSecret, authMsg.Token)
	if err != nil || session.Role != models.RoleAdmin {
		log.Printf("Admin feed auth failed: %v", err)
		_ = c.WriteJSON(fiber.Map{"error": "Admin access required"})
		c.Close()
		return
	}

	if err := c.WriteJSON(fiber.Map{"type": "ready"}); err != nil {
		c.Close()
		return
	}

	h.Hub.Register(c)
	defer h.Hub.Unregister(c)

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}

func WebSocketUpgrade(c *fiber.Ctx) error {
	if !websocketcontrib.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return c.Next()
}
