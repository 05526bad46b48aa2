package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/powerca/backoffice/database"
	"github.com/powerca/backoffice/middleware"
	"github.com/powerca/backoffice/utils"
)

type UpdateProfileRequest struct {
	FullName *string `json:"full_name" validate:"omitempty,min=2,max=255"`
	Phone    *string `json:"phone" validate:"omitempty,max=32"`
	Company  *string `json:"company" validate:"omitempty,max=255"`
	FirmSize *string `json:"firm_size" validate:"omitempty,max=32"`
	City     *string `json:"city" validate:"omitempty,max=100"`
}

type TrackActivityRequest struct {
	Activity   string            `json:"activity" validate:"required,max=100"`
	Properties map[string]string `json:"properties"`
}

func (h *Handler) UpdateProfile(c *fiber.Ctx) error {
	session := middleware.SessionFrom(c)
	if session == nil {
		return RespondError(c, utils.NewError(utils.KindAuthentication, "Authentication required"))
	}

	var req UpdateProfileRequest
	if err := parseBody(c, &req); err != nil {
		return RespondError(c, err)
	}

	user, err := h.Store.FindUserByID(c.UserContext(), session.UserID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return RespondError(c, utils.NewError(utils.KindNotFound, "User not found"))
		}
		return RespondError(c, utils.WrapError(utils.KindInternal, "Failed to load profile", err))
	}

	changed := map[string]string{}
	if req.FullName != nil {
		user.FullName = *req.FullName
		changed["full_name"] = user.FullName
	}
	if req.Phone != nil {
		user.Phone = utils.NormalizePhone(*req.Phone)
		changed["phone"] = user.Phone
	}
	if req.Company != nil {
		user.Company = *req.Company
		changed["company"] = user.Company
	}
	if req.FirmSize != nil {
		user.FirmSize = *req.FirmSize
		changed["firm_size"] = user.FirmSize
	}
	if req.City != nil {
		user.City = *req.City
		changed["city"] = user.City
	}

	if err := h.Store.SaveUser(c.UserContext(), user); err != nil {
		return RespondError(c, utils.WrapError(utils.KindInternal, "Failed to update profile", err))
	}

	go h.CRM.UpdateUserProperties(context.Background(), user.Email, changed)

	return c.JSON(fiber.Map{"success": true, "data": userResponse(user)})
}

func (h *Handler) TrackActivity(c *fiber.Ctx) error {
	session := middleware.SessionFrom(c)
	if session == nil {
		return RespondError(c, utils.NewError(utils.KindAuthentication, "Authentication required"))
	}

	var req TrackActivityRequest
	if err := parseBody(c, &req); err != nil {
		return RespondError(c, err)
	}

	go h.CRM.TrackUserActivity(context.Background(), session.Email, req.Activity, req.Properties)

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"success": true})
}

func (h *Handler) GetProfile(c *fiber.Ctx) error {
	session := middleware.SessionFrom(c)
	if session == nil {
		return RespondError(c, utils.NewError(utils.KindAuthentication, "Authentication required"))
	}

	user, err := h.Store.FindUserByID(c.UserContext(), session.UserID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return RespondError(c, utils.NewError(utils.KindNotFound, "User not found"))
		}
		return RespondError(c, utils.WrapError(utils.KindInternal, "Failed to load profile", err))
	}
	return c.JSON(fiber.Map{"success": true, "data": userResponse(user)})
}
