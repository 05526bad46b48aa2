package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/powerca/backoffice/crm"
	"github.com/powerca/backoffice/invoices"
	"github.com/powerca/backoffice/middleware"
	"github.com/powerca/backoffice/models"
	"github.com/powerca/backoffice/services"
	"github.com/powerca/backoffice/utils"
)

type customerDetails struct {
	Email   string `json:"email" validate:"omitempty,email"`
	Name    string `json:"name" validate:"max=255"`
	Phone   string `json:"phone" validate:"max=32"`
	Company string `json:"company" validate:"max=255"`
	GST     string `json:"gst" validate:"max=20"`
	Address string `json:"address"`
}

type productDetails struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount" validate:"gte=0"`
}

// VerifyPaymentRequest accepts both the generic field names and Razorpay's native ones.
type VerifyPaymentRequest struct {
	OrderID   string `json:"orderId"`
	PaymentID string `json:"paymentId"`
	Signature string `json:"signature"`

	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpaySignature string `json:"razorpay_signature"`

	CustomerDetails *customerDetails `json:"customerDetails"`
	ProductDetails  *productDetails  `json:"productDetails"`
	IsTestPayment   bool             `json:"isTestPayment"`
	AffiliateCode   string           `json:"affiliateCode" validate:"max=32"`
	PlanID          string           `json:"planId" validate:"max=100"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// Canonical folds the two accepted wire shapes into one request.
func (r VerifyPaymentRequest) Canonical() services.VerifyRequest {
	req := services.VerifyRequest{
		OrderID:       firstNonEmpty(r.OrderID, r.RazorpayOrderID),
		PaymentID:     firstNonEmpty(r.PaymentID, r.RazorpayPaymentID),
		Signature:     firstNonEmpty(r.Signature, r.RazorpaySignature),
		IsTestPayment: r.IsTestPayment,
		AffiliateCode: strings.ToUpper(strings.TrimSpace(r.AffiliateCode)),
		PlanID:        strings.TrimSpace(r.PlanID),
	}
	if r.CustomerDetails != nil {
		req.Customer = &services.CustomerDetails{
			Email:   r.CustomerDetails.Email,
			Name:    r.CustomerDetails.Name,
			Phone:   r.CustomerDetails.Phone,
			Company: r.CustomerDetails.Company,
			GST:     strings.ToUpper(strings.TrimSpace(r.CustomerDetails.GST)),
			Address: r.CustomerDetails.Address,
		}
	}
	if r.ProductDetails != nil {
		req.Product = &services.ProductDetails{Name: r.ProductDetails.Name, Amount: r.ProductDetails.Amount}
	}
	return req
}

func (h *Handler) VerifyPayment(c *fiber.Ctx) error {
	var body VerifyPaymentRequest
	if err := parseBody(c, &body); err != nil {
		return RespondError(c, err)
	}

	req := body.Canonical()
	if session := middleware.SessionFrom(c); session != nil {
		req.Session = &services.SessionUser{ID: session.UserID, Email: session.Email, Name: session.Name}
	}

	outcome, err := h.Verification.Verify(c.UserContext(), req)
	if err != nil {
		return RespondError(c, err)
	}

	if !outcome.Replay {
		event := crm.PaymentEvent{
			Email:         outcome.Customer.Email,
			Name:          outcome.Customer.Name,
			Phone:         outcome.Customer.Phone,
			Company:       outcome.Customer.Company,
			PlanID:        outcome.PlanID,
			Amount:        outcome.Amount,
			InvoiceNumber: outcome.InvoiceNumber,
			OrderID:       outcome.OrderID,
			PaymentID:     outcome.PaymentID,
		}
		go h.CRM.AfterPaymentCompleted(context.Background(), event)
		h.Hub.Publish("payment_verified", outcome)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Payment verified successfully",
		"data": fiber.Map{
			"paymentId":     outcome.PaymentID,
			"orderId":       outcome.OrderID,
			"invoiceNumber": outcome.InvoiceNumber,
			"amount":        outcome.Amount,
			"currency":      outcome.Currency,
		},
	})
}

type CreateOrderRequest struct {
	PlanID          string           `json:"planId" validate:"required,max=100"`
	Amount          float64          `json:"amount" validate:"required,gt=0"`
	CustomerDetails *customerDetails `json:"customerDetails"`
}

func (h *Handler) CreateOrder(c *fiber.Ctx) error {
	var req CreateOrderRequest
	if err := parseBody(c, &req); err != nil {
		return RespondError(c, err)
	}

	subtotal := invoices.FromRupees(req.Amount)
	tax := invoices.ComputeGST(subtotal, h.Settings.GSTExempt)
	receipt := "rcpt_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]

	email := ""
	if req.CustomerDetails != nil {
		email = strings.ToLower(strings.TrimSpace(req.CustomerDetails.Email))
	}

	var orderID string
	isTest := false
	switch {
	case h.Razorpay.Configured():
		order, err := h.Razorpay.CreateOrder(c.UserContext(), int64(tax.GrandTotal), "INR", receipt, map[string]string{
			"plan_id": req.PlanID,
			"email":   email,
		})
		if err != nil {
			h.Logger.Error("razorpay order creation failed", "plan_id", req.PlanID, "error", err)
			return RespondError(c, utils.WrapError(utils.KindPayment, "Failed to create payment order", err))
		}
		orderID = order.ID
	case !h.Settings.IsProduction():
		orderID = "order_test_" + uuid.NewString()
		isTest = true
	default:
		return RespondError(c, utils.NewError(utils.KindConfiguration, "payment gateway is not configured"))
	}

	order := &models.PaymentOrder{
		OrderID:  orderID,
		Amount:   subtotal.Rupees(),
		Currency: "INR",
		PlanID:   req.PlanID,
		Email:    email,
		Receipt:  receipt,
		Status:   models.OrderStatusCreated,
	}
	if err := h.Store.CreateOrder(c.UserContext(), order); err != nil {
		return RespondError(c, utils.WrapError(utils.KindInternal, "Failed to save payment order", err))
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"orderId":     orderID,
			"amount":      tax.GrandTotal.Rupees(),
			"amountPaise": int64(tax.GrandTotal),
			"subtotal":    subtotal.Rupees(),
			"gst":         tax.TotalTax.Rupees(),
			"currency":    "INR",
			"keyId":       h.Settings.RazorpayKeyID,
			"isTest":      isTest,
		},
	})
}
