// middleware/user_context.go
package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// UserContextMiddleware extracts the user identity set by the Gateway.
// Reaction routes require it; comment routes accept anonymous authors, so
// the identity is attached when present and enforced in the handlers.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get("X-User-ID"))

		if userID != "" {
			c.Locals("user_id", userID)
			log.Printf("👤 [USER_CTX] UserID=%s | Path: %s", userID, c.Path())
		}

		return c.Next()
	}
}

// UserID pulls the gateway-provided identity off the request, empty when
// the caller is anonymous.
func UserID(c *fiber.Ctx) string {
	if v, ok := c.Locals("user_id").(string); ok {
		return v
	}
	return ""
}
