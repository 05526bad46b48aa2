package handlers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/powerca/backoffice/database"
	"github.com/powerca/backoffice/middleware"
	"github.com/powerca/backoffice/models"
	"github.com/powerca/backoffice/notifications"
	"github.com/powerca/backoffice/utils"
	"golang.org/x/crypto/bcrypt"
)

const (
	trialLength = 14 * 24 * time.Hour
	tokenTTL    = 72 * time.Hour
)

type RegisterRequest struct {
	FullName string `json:"full_name" validate:"required,min=2,max=255"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Phone    string `json:"phone" validate:"max=32"`
	Company  string `json:"company" validate:"max=255"`
	FirmSize string `json:"firm_size" validate:"max=32"`
	City     string `json:"city" validate:"max=100"`
}

type UserResponse struct {
	ID          string     `json:"id"`
	FullName    string     `json:"full_name"`
	Email       string     `json:"email"`
	Role        string     `json:"role"`
	TrialEndsAt *time.Time `json:"trial_ends_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func userResponse(user *models.User) UserResponse {
	return UserResponse{
		ID:          user.ID.String(),
		FullName:    user.FullName,
		Email:       user.Email,
		Role:        user.Role,
		TrialEndsAt: user.TrialEndsAt,
		CreatedAt:   user.CreatedAt,
	}
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) RegisterUser(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := parseBody(c, &req); err != nil {
		return RespondError(c, err)
	}
	ctx := c.UserContext()
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if _, err := h.Store.FindUserByEmail(ctx, email); err == nil {
		return RespondError(c, utils.NewError(utils.KindConflict, "Email already exists"))
	} else if !errors.Is(err, database.ErrNotFound) {
		return RespondError(c, utils.WrapError(utils.KindInternal, "Failed to create user", err))
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return RespondError(c, utils.WrapError(utils.KindInternal, "Failed to hash password", err))
	}

	trialEnds := time.Now().Add(trialLength)
	user := &models.User{
		FullName:    strings.TrimSpace(req.FullName),
		Email:       email,
		Password:    string(hashedPassword),
		Role:        models.RoleCustomer,
		Phone:       utils.NormalizePhone(req.Phone),
		Company:     req.Company,
		FirmSize:    req.FirmSize,
		City:        req.City,
		TrialEndsAt: &trialEnds,
		IsActive:    true,
	}
	if err := h.Store.CreateUser(ctx, user); err != nil {
		return RespondError(c, utils.WrapError(utils.KindInternal, "Failed to create user", err))
	}

	token, err := middleware.IssueToken(h.Settings.JWTSecret, user, tokenTTL)
	if err != nil {
		return RespondError(c, utils.WrapError(utils.KindInternal, "Failed to create token", err))
	}

	subject, body := notifications.Welcome(user.FullName, trialEnds)
	go notifications.SendEmail(context.Background(), h.Mailer, notifications.Message{
		ToEmail: user.Email, ToName: user.FullName, Subject: subject, HTML: body,
	})
	created := *user
	go func() {
		h.CRM.AfterUserCreate(context.Background(), &created)
		h.CRM.AfterTrialStarted(context.Background(), &created)
	}()

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"user": userResponse(user), "token": token},
	})
}

func (h *Handler) LoginUser(c *fiber.Ctx) error {
	var req LoginRequest
	if err := parseBody(c, &req); err != nil {
		return RespondError(c, err)
	}

	invalid := utils.NewError(utils.KindAuthentication, "Invalid email or password")

	user, err := h.Store.FindUserByEmail(c.UserContext(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return RespondError(c, invalid)
		}
		return RespondError(c, utils.WrapError(utils.KindInternal, "Failed to log in", err))
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return RespondError(c, invalid)
	}
	if !user.IsActive {
		return RespondError(c, utils.NewError(utils.KindAuthorization, "Account is deactivated"))
	}

	token, err := middleware.IssueToken(h.Settings.JWTSecret, user, tokenTTL)
	if err != nil {
		return RespondError(c, utils.WrapError(utils.KindInternal, "Failed to create token", err))
	}

	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"token": token, "user": userResponse(user)}})
}
