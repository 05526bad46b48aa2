package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/powerca/backoffice/handlers"
	"github.com/powerca/backoffice/middleware"
)

func ProfileRoutes(app *fiber.App, h *handlers.Handler) {
	api := app.Group("/api")
	protected := middleware.Protected(h.Settings.JWTSecret)

	api.Get("/profile", protected, h.GetProfile)
	api.Put("/profile", protected, h.UpdateProfile)
	api.Post("/activity", protected, h.TrackActivity)
}
