package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/powerca/backoffice/handlers"
)

func Setup(app *fiber.App, h *handlers.Handler) {
	PublicRoutes(app, h)
	AuthRoutes(app, h)
	PaymentRoutes(app, h)
	ProfileRoutes(app, h)
	AdminRoutes(app, h)
}
