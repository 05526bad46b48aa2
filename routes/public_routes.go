package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/powerca/backoffice/handlers"
)

func PublicRoutes(app *fiber.App, h *handlers.Handler) {
	api := app.Group("/api")

	api.Post("/demo/book", h.BookDemo)
}
