package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/powerca/backoffice/models"
	"github.com/powerca/backoffice/notifications"
	"github.com/powerca/backoffice/utils"
)

type BookDemoRequest struct {
	Name        string    `json:"name" validate:"required,min=2,max=255"`
	Email       string    `json:"email" validate:"required,email"`
	Phone       string    `json:"phone" validate:"max=32"`
	Company     string    `json:"company" validate:"max=255"`
	FirmSize    string    `json:"firm_size" validate:"max=32"`
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
	Notes       string    `json:"notes" validate:"max=2000"`
}

func (h *Handler) BookDemo(c *fiber.Ctx) error {
	var req BookDemoRequest
	if err := parseBody(c, &req); err != nil {
		return RespondError(c, err)
	}
	if !req.ScheduledAt.After(time.Now()) {
		return RespondError(c, utils.NewError(utils.KindValidation, "scheduled_at must be in the future"))
	}

	booking := &models.DemoBooking{
		Name:        strings.TrimSpace(req.Name),
		Email:       strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:       utils.NormalizePhone(req.Phone),
		Company:     req.Company,
		FirmSize:    req.FirmSize,
		ScheduledAt: req.ScheduledAt.UTC(),
		Notes:       req.Notes,
		Status:      models.DemoStatusScheduled,
	}
	if err := h.Store.CreateDemoBooking(c.UserContext(), booking); err != nil {
		return RespondError(c, utils.WrapError(utils.KindInternal, "Failed to book demo", err))
	}

	subject, body := notifications.DemoConfirmation(booking.Name, booking.ScheduledAt)
	go notifications.SendEmail(context.Background(), h.Mailer, notifications.Message{
		ToEmail: booking.Email, ToName: booking.Name, Subject: subject, HTML: body,
	})
	booked := *booking
	go h.CRM.AfterDemoScheduled(context.Background(), &booked)
	h.Hub.Publish("demo_booked", booked)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": booking})
}
