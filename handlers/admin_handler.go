package handlers

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/powerca/backoffice/database"
	"github.com/powerca/backoffice/models"
	"github.com/powerca/backoffice/utils"
)

const exportLimit = 10000

func (h *Handler) AdminGetPayments(c *fiber.Ctx) error {
	p := paginate(c)
	payments, total, err := h.Store.ListPayments(c.UserContext(), p.Limit, p.Offset)
	if err != nil {
		return RespondError(c, utils.WrapError(utils.KindInternal, "Failed to load payments", err))
	}

	ids := make([]uuid.UUID, 0, len(payments))
	for _, payment := range payments {
		ids = append(ids, payment.ID)
	}
	invoices, err := h.Store.InvoicesByPaymentIDs(c.UserContext(), ids)
	if err != nil {
		return RespondError(c, utils.WrapError(utils.KindInternal, "Failed to load invoices", err))
	}

	type row struct {
		models.Payment
		Invoice *models.Invoice `json:"invoice,omitempty"`
	}
	rows := make([]row, 0, len(payments))
	for _, payment := range payments {
		r := row{Payment: payment}
		if inv, ok := invoices[payment.ID]; ok {
			r.Invoice = &inv
		}
		rows = append(rows, r)
	}

	return c.JSON(fiber.Map{"success": true, "data": rows, "meta": p.meta(total)})
}

func (h *Handler) AdminExportPayments(c *fiber.Ctx) error {
	payments, _, err := h.Store.ListPayments(c.UserContext(), exportLimit, 0)
	if err != nil {
		return RespondError(c, utils.WrapError(utils.KindInternal, "Failed to load payments", err))
	}

	ids := make([]uuid.UUID, 0, len(payments))
	for _, payment := range payments {
		ids = append(ids, payment.ID)
	}
	invoices, err := h.Store.InvoicesByPaymentIDs(c.UserContext(), ids)
	if err != nil {
		return RespondError(c, utils.WrapError(utils.KindInternal, "Failed to load invoices", err))
	}

	buf, err := buildPaymentsWorkbook(payments, invoices)
	if err != nil {
		return RespondError(c, utils.WrapError(utils.KindInternal, "Failed to build export", err))
	}

	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=\"payments_%s.xlsx\"", time.Now().Format("2006-01-02")))
	return c.Send(buf.Bytes())
}

func (h *Handler) AdminGetDemoBookings(c *fiber.Ctx) error {
	p := paginate(c)
	bookings, err := h.Store.ListDemoBookings(c.UserContext(), p.Limit, p.Offset)
	if err != nil {
		return RespondError(c, utils.WrapError(utils.KindInternal, "Failed to load demo bookings", err))
	}
	return c.JSON(fiber.Map{"success": true, "data": bookings})
}

func (h *Handler) AdminListAffiliates(c *fiber.Ctx) error {
	profiles, err := h.Store.ListAffiliateProfiles(c.UserContext())
	if err != nil {
		return RespondError(c, utils.WrapError(utils.KindInternal, "Failed to load affiliates", err))
	}
	return c.JSON(fiber.Map{"success": true, "data": profiles})
}

type CreateAffiliateRequest struct {
	Name         string `json:"name" validate:"required,min=2,max=255"`
	Email        string `json:"email" validate:"required,email"`
	AffiliateID  string `json:"affiliate_id" validate:"omitempty,max=64"`
	ReferralCode string `json:"referral_code" validate:"omitempty,alphanum,min=4,max=32"`
}

func (h *Handler) AdminCreateAffiliate(c *fiber.Ctx) error {
	var req CreateAffiliateRequest
	if err := parseBody(c, &req); err != nil {
		return RespondError(c, err)
	}
	ctx := c.UserContext()

	code := strings.ToUpper(req.ReferralCode)
	if code != "" {
		exists, err := h.Store.ReferralCodeExists(ctx, code)
		if err != nil {
			return RespondError(c, utils.WrapError(utils.KindInternal, "Failed to check referral code", err))
		}
		if exists {
			return RespondError(c, utils.NewError(utils.KindConflict, "Referral code already in use"))
		}
	} else {
		generated, err := utils.GenerateUniqueReferralCode(ctx, h.Store.ReferralCodeExists)
		if err != nil {
			return RespondError(c, utils.WrapError(utils.KindInternal, "Failed to generate referral code", err))
		}
		code = generated
	}

	affiliateID := req.AffiliateID
	if affiliateID == "" {
		affiliateID = "AFF-" + code
	}

	profile := &models.AffiliateProfile{
		AffiliateID:  affiliateID,
		ReferralCode: code,
		Name:         req.Name,
		Email:        strings.ToLower(req.Email),
		Status:       "active",
	}
	if err := h.Store.CreateAffiliateProfile(ctx, profile); err != nil {
		return RespondError(c, utils.WrapError(utils.KindInternal, "Failed to create affiliate", err))
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": profile})
}

func (h *Handler) AdminGetAffiliateReferrals(c *fiber.Ctx) error {
	profileID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return RespondError(c, utils.NewError(utils.KindValidation, "Invalid affiliate ID format"))
	}
	ctx := c.UserContext()

	profile, err := h.Store.FindAffiliateProfile(ctx, profileID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return RespondError(c, utils.NewError(utils.KindNotFound, "Affiliate not found"))
		}
		return RespondError(c, utils.WrapError(utils.KindInternal, "Failed to load affiliate", err))
	}

	referrals, err := h.Store.ListReferralsForProfile(ctx, profileID)
	if err != nil {
		return RespondError(c, utils.WrapError(utils.KindInternal, "Failed to load referrals", err))
	}
	payments, err := h.Store.ListPaymentReferralsForProfile(ctx, profileID)
	if err != nil {
		return RespondError(c, utils.WrapError(utils.KindInternal, "Failed to load referred payments", err))
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"affiliate":         profile,
			"referrals":         referrals,
			"payment_referrals": payments,
		},
	})
}
