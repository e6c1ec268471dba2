// handlers/feedback.go
package handlers

import (
	"arena-feedback-system/middleware"
	"arena-feedback-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupFeedbackRoutes(app *fiber.App, feedbackService *services.FeedbackService) {
	// 🔓 Public read — counts and comments for one match
	app.Get("/matches/:id/feedback", func(c *fiber.Ctx) error {
		snapshot, err := feedbackService.Snapshot(c.Params("id"))
		if err != nil {
			return respondErr(c, err)
		}
		return c.JSON(snapshot)
	})

	secured := app.Group("/", middleware.UserContextMiddleware())

	// Reactions require a gateway-verified identity; the toggle semantics
	// live in the service.
	secured.Post("/matches/:id/feedback", func(c *fiber.Ctx) error {
		var body struct {
			Type string `json:"type"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed request body"})
		}
		userID := middleware.UserID(c)
		if userID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "reactions require an authenticated user"})
		}
		state, err := feedbackService.React(c.Params("id"), userID, body.Type)
		if err != nil {
			return respondErr(c, err)
		}
		return c.JSON(state)
	})

	secured.Post("/matches/:id/comments", func(c *fiber.Ctx) error {
		var body struct {
			Text        string   `json:"text"`
			Tags        []string `json:"tags"`
			IsAnonymous bool     `json:"is_anonymous"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed request body"})
		}
		comment, err := feedbackService.Comment(c.Params("id"), middleware.UserID(c), body.Text, body.Tags, body.IsAnonymous)
		if err != nil {
			return respondErr(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(comment)
	})
}
