package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/powerca/backoffice/handlers"
	"github.com/powerca/backoffice/middleware"
)

func PaymentRoutes(app *fiber.App, h *handlers.Handler) {
	api := app.Group("/api")

	payment := api.Group("/payment", middleware.OptionalSession(h.Settings.JWTSecret))
	payment.Post("/create-order", h.CreateOrder)
	payment.Post("/verify", h.VerifyPayment)
}
