// handlers/match.go
package handlers

import (
	"strconv"

	"arena-feedback-system/middleware"
	"arena-feedback-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupMatchRoutes(app *fiber.App, matchService *services.MatchService, archiveService *services.ArchiveService) {
	// 🔓 Public reads. Export registers first so /matches/:id never
	// captures the literal "export" segment.
	app.Get("/matches/export", func(c *fiber.Ctx) error {
		category := c.Query("category")
		subcategory := c.Query("subcategory")
		year, _ := strconv.Atoi(c.Query("year"))
		if category == "" || subcategory == "" || year == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "category, subcategory and year are required",
			})
		}
		url, err := archiveService.Export(category, subcategory, year)
		if err != nil {
			return respondErr(c, err)
		}
		return c.JSON(fiber.Map{"archive_url": url})
	})

	app.Get("/matches/:id", func(c *fiber.Ctx) error {
		match, err := matchService.Get(c.Params("id"))
		if err != nil {
			return respondErr(c, err)
		}
		return c.JSON(match)
	})

	// 🔐 Authenticated routes
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Post("/matches", func(c *fiber.Ctx) error {
		var spec services.MatchSpec
		if err := c.BodyParser(&spec); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed request body"})
		}
		match, err := matchService.Create(spec)
		if err != nil {
			return respondErr(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(match)
	})
}
