// handlers/channel.go
package handlers

import (
	"errors"
	"log"

	"arena-feedback-system/services"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// SetupChannelRoutes exposes the per-match realtime channel. A client
// reconnecting with the same clientId replaces its old subscription, so a
// flapping connection never double-delivers.
func SetupChannelRoutes(app *fiber.App, hub *services.Hub) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/matches/:id", websocket.New(func(conn *websocket.Conn) {
		matchID := conn.Params("id")
		clientID := conn.Query("clientId")
		if clientID == "" {
			clientID = uuid.NewString()
		}

		sub, err := hub.Connect(matchID, clientID)
		if err != nil {
			if errors.Is(err, services.ErrNotFound) {
				_ = conn.WriteJSON(fiber.Map{"error": "unknown match"})
			}
			conn.Close()
			return
		}
		// Teardown by subscriber identity: if a reconnect already replaced
		// this subscription, the replacement stays untouched.
		defer hub.DisconnectSub(sub)

		// Reader: the channel is server→client only, so incoming frames are
		// drained purely to notice the close.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case msg, ok := <-sub.Messages():
				if !ok {
					return
				}
				if err := conn.WriteJSON(msg); err != nil {
					log.Printf("[WS] write to client %s on match %s failed: %v", clientID, matchID, err)
					return
				}
			case <-closed:
				return
			}
		}
	}))
}
