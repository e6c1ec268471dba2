// handlers/leaderboard.go
package handlers

import (
	"strconv"

	"arena-feedback-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupLeaderboardRoutes(app *fiber.App, leaderboardService *services.LeaderboardService) {
	// 🔓 Public — ranking table for one category/subcategory/year partition
	app.Get("/leaderboard", func(c *fiber.Ctx) error {
		category := c.Query("category")
		subcategory := c.Query("subcategory")
		year, _ := strconv.Atoi(c.Query("year"))
		if category == "" || subcategory == "" || year == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "category, subcategory and year are required",
			})
		}

		entries := leaderboardService.Rankings(category, subcategory, year)
		return c.JSON(fiber.Map{
			"category":    category,
			"subcategory": subcategory,
			"year":        year,
			"rankings":    entries,
		})
	})
}
