package routes

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/powerca/backoffice/handlers"
	"github.com/powerca/backoffice/middleware"
)

func AdminRoutes(app *fiber.App, h *handlers.Handler) {
	// the feed authenticates inside the socket, so it is registered ahead of the JWT group
	app.Get("/api/admin/ws", handlers.WebSocketUpgrade, websocket.New(h.ServeAdminFeed))

	admin := app.Group("/api/admin", middleware.Protected(h.Settings.JWTSecret), middleware.AdminRequired())

	admin.Get("/payments", h.AdminGetPayments)
	admin.Get("/payments/export", h.AdminExportPayments)
	admin.Get("/demo-bookings", h.AdminGetDemoBookings)

	affiliates := admin.Group("/affiliates")
	affiliates.Get("", h.AdminListAffiliates)
	affiliates.Post("", h.AdminCreateAffiliate)
	affiliates.Get("/:id/referrals", h.AdminGetAffiliateReferrals)
}
