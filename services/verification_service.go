package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/powerca/backoffice/cache"
	"github.com/powerca/backoffice/database"
	"github.com/powerca/backoffice/invoices"
	"github.com/powerca/backoffice/metrics"
	"github.com/powerca/backoffice/models"
	"github.com/powerca/backoffice/notifications"
	"github.com/powerca/backoffice/payments"
	"github.com/powerca/backoffice/utils"
)

const (
	StepPersistPayment = "persist_payment"
	StepRenderPDF      = "render_pdf"
	StepPersistInvoice = "persist_invoice"
	StepArchivePDF     = "archive_pdf"
	StepSendEmail      = "send_email"
	StepReferral       = "attribute_referral"
	StepMarkOrderPaid  = "mark_order_paid"

	defaultCurrency = "INR"

	// well above the worst case of one run, which is dominated by the 30s PDF render
	verifyLockTTL = 2 * time.Minute
)

// PaymentStore is the slice of the persistence gateway the orchestrator needs.
type PaymentStore interface {
	FindPaymentByPaymentID(ctx context.Context, paymentID string) (*models.Payment, error)
	CreatePayment(ctx context.Context, payment *models.Payment) error
	CreateInvoice(ctx context.Context, invoice *models.Invoice) error
	FindInvoiceByPayment(ctx context.Context, paymentRecordID uuid.UUID) (*models.Invoice, error)
	SetInvoicePDFURL(ctx context.Context, invoiceID uuid.UUID, url string) error
	FindOrder(ctx context.Context, orderID string) (*models.PaymentOrder, error)
	MarkOrderPaid(ctx context.Context, orderID string, at time.Time) (bool, error)
}

type Attributor interface {
	Attribute(ctx context.Context, in Attribution) AttributionResult
}

type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

type CustomerDetails struct {
	Email   string
	Name    string
	Phone   string
	Company string
	GST     string
	Address string
}

type ProductDetails struct {
	Name   string
	Amount float64
}

type SessionUser struct {
	ID    uuid.UUID
	Email string
	Name  string
}

// VerifyRequest is the canonical form of a checkout confirmation, whichever field
// naming the client used.
type VerifyRequest struct {
	OrderID       string
	PaymentID     string
	Signature     string
	Customer      *CustomerDetails
	Product       *ProductDetails
	IsTestPayment bool
	AffiliateCode string
	PlanID        string
	Session       *SessionUser
}

type StepStatus string

const (
	StepOK      StepStatus = "ok"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

type StepResult struct {
	Step   string     `json:"step"`
	Status StepStatus `json:"status"`
	Error  string     `json:"error,omitempty"`
}

// Outcome is the report of one verification. Once a request gets an Outcome the
// payment is verified; Steps tell which bookkeeping succeeded.
type Outcome struct {
	OrderID         string            `json:"order_id"`
	PaymentID       string            `json:"payment_id"`
	InvoiceNumber   string            `json:"invoice_number"`
	Amount          float64           `json:"amount"`
	Currency        string            `json:"currency"`
	PlanID          string            `json:"plan_id"`
	Bypassed        bool              `json:"bypassed"`
	Replay          bool              `json:"replay"`
	PaymentRecordID uuid.UUID         `json:"payment_record_id"`
	Customer        CustomerDetails   `json:"-"`
	Steps           []StepResult      `json:"steps"`
	Referral        AttributionResult `json:"-"`
}

func (o *Outcome) record(step string, err error) {
	if err != nil {
		o.Steps = append(o.Steps, StepResult{Step: step, Status: StepFailed, Error: err.Error()})
		return
	}
	o.Steps = append(o.Steps, StepResult{Step: step, Status: StepOK})
}

func (o *Outcome) skip(step string) {
	o.Steps = append(o.Steps, StepResult{Step: step, Status: StepSkipped})
}

func (o Outcome) Step(name string) StepStatus {
	for _, s := range o.Steps {
		if s.Step == name {
			return s.Status
		}
	}
	return ""
}

func (o Outcome) FailedSteps() []string {
	var failed []string
	for _, s := range o.Steps {
		if s.Status == StepFailed {
			failed = append(failed, s.Step)
		}
	}
	return failed
}

func (o Outcome) Degraded() bool {
	return len(o.FailedSteps()) > 0
}

type VerificationDeps struct {
	Store     PaymentStore
	Verifier  *payments.Verifier
	Composer  *invoices.Composer
	Renderer  invoices.Renderer
	Archive   invoices.Archive
	Mailer    notifications.Mailer
	Referrals Attributor
	Locker    Locker
	Seller    invoices.Party
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

type VerificationService struct {
	VerificationDeps
	now func() time.Time
}

func NewVerificationService(deps VerificationDeps) *VerificationService {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop()
	}
	return &VerificationService{VerificationDeps: deps, now: time.Now}
}

// Verify checks the gateway signature and then runs every bookkeeping step best-effort.
// It returns an error only before the payment is proven genuine.
func (s *VerificationService) Verify(ctx context.Context, req VerifyRequest) (*Outcome, error) {
	if req.OrderID == "" || req.PaymentID == "" {
		s.Metrics.Verifications.WithLabelValues("invalid").Inc()
		return nil, utils.NewError(utils.KindValidation, "order id and payment id are required")
	}

	bypassed, err := s.Verifier.Check(req.OrderID, req.PaymentID, req.Signature, req.IsTestPayment)
	if err != nil {
		s.Metrics.Verifications.WithLabelValues("rejected").Inc()
		s.Logger.Warn("payment signature rejected", "order_id", req.OrderID, "payment_id", req.PaymentID, "error", err)
		return nil, err
	}

	log := s.Logger.With("order_id", req.OrderID, "payment_id", req.PaymentID)

	if s.Locker != nil {
		release, err := s.Locker.Acquire(ctx, "verify:"+req.PaymentID, verifyLockTTL)
		switch {
		case errors.Is(err, cache.ErrLockHeld):
			s.Metrics.Verifications.WithLabelValues("conflict").Inc()
			return nil, utils.WrapError(utils.KindConflict, "this payment is already being verified, retry shortly", err)
		case err != nil:
			log.Warn("verification lock unavailable, continuing without it", "error", err)
		default:
			defer release()
		}
	}

	existing, err := s.Store.FindPaymentByPaymentID(ctx, req.PaymentID)
	if err == nil {
		return s.replay(ctx, log, existing, bypassed), nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		log.Error("replay lookup failed", "error", err)
	}

	outcome := &Outcome{
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Currency:  defaultCurrency,
		Bypassed:  bypassed,
		Customer:  resolveCustomer(req),
	}
	subtotal, planID, description := s.resolveProduct(ctx, log, req)
	outcome.PlanID = planID

	payment := &models.Payment{
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
		Amount:    subtotal.Rupees(),
		Currency:  defaultCurrency,
		Status:    models.PaymentStatusSuccess,
		Plan:      planID,
		Email:     outcome.Customer.Email,
		Phone:     utils.NormalizePhone(outcome.Customer.Phone),
		Name:      outcome.Customer.Name,
		Company:   outcome.Customer.Company,
		GSTNumber: outcome.Customer.GST,
		Address:   outcome.Customer.Address,
		IsTest:    req.IsTestPayment,
	}
	if req.Session != nil && req.Session.ID != uuid.Nil {
		payment.UserID = &req.Session.ID
	}
	err = s.Store.CreatePayment(ctx, payment)
	switch {
	case errors.Is(err, database.ErrDuplicate):
		// another delivery of this callback stored the payment after our lookup
		stored, lookupErr := s.Store.FindPaymentByPaymentID(ctx, req.PaymentID)
		if lookupErr == nil {
			return s.replay(ctx, log, stored, bypassed), nil
		}
		log.Error("payment stored concurrently but could not be reloaded", "error", lookupErr)
		outcome.Replay = true
		outcome.Amount = s.Composer.Tax(subtotal, outcome.Customer.GST).GrandTotal.Rupees()
		outcome.record(StepPersistPayment, lookupErr)
		s.report(log, outcome)
		return outcome, nil
	case err != nil:
		log.Error("failed to persist payment", "error", err)
		outcome.record(StepPersistPayment, err)
		payment = nil
	default:
		outcome.PaymentRecordID = payment.ID
		outcome.record(StepPersistPayment, nil)
	}

	draft := s.Composer.Compose(subtotal, outcome.Customer.GST, req.IsTestPayment)
	outcome.InvoiceNumber = draft.Number
	outcome.Amount = draft.Tax.GrandTotal.Rupees()

	// the invoice row goes in before the PDF render so retries and the reconciler see it
	var invoice *models.Invoice
	if payment != nil {
		invoice = s.persistInvoice(ctx, log, payment.ID, draft, outcome)
	} else {
		outcome.skip(StepPersistInvoice)
	}

	issuedAt := draft.IssuedAt
	if invoice != nil && invoice.InvoiceNumber != draft.Number {
		issuedAt = invoice.CreatedAt
	}
	data := invoices.Data{
		Number:      outcome.InvoiceNumber,
		IssuedAt:    issuedAt,
		Seller:      s.Seller,
		Customer:    partyFor(outcome.Customer),
		Description: description,
		OrderID:     req.OrderID,
		PaymentID:   req.PaymentID,
		Currency:    defaultCurrency,
		Tax:         draft.Tax,
		IsTest:      draft.IsTest,
	}
	pdf := s.renderPDF(ctx, log, data, outcome)

	s.archivePDF(ctx, log, invoice, data, pdf, outcome)
	s.sendConfirmation(ctx, log, outcome, description, data, pdf)

	if req.AffiliateCode != "" && s.Referrals != nil {
		outcome.Referral = s.Referrals.Attribute(ctx, Attribution{
			Code:          req.AffiliateCode,
			PayerEmail:    outcome.Customer.Email,
			PayerName:     outcome.Customer.Name,
			PaymentID:     req.PaymentID,
			PlanID:        planID,
			PaymentAmount: outcome.Amount,
		})
		if len(outcome.Referral.Errors) > 0 {
			outcome.record(StepReferral, errors.New(strings.Join(outcome.Referral.Errors, "; ")))
		} else {
			outcome.record(StepReferral, nil)
		}
	} else {
		outcome.skip(StepReferral)
	}

	if updated, err := s.Store.MarkOrderPaid(ctx, req.OrderID, s.now()); err != nil {
		log.Error("failed to mark order paid", "error", err)
		outcome.record(StepMarkOrderPaid, err)
	} else if !updated {
		outcome.skip(StepMarkOrderPaid)
	} else {
		outcome.record(StepMarkOrderPaid, nil)
	}

	s.report(log, outcome)
	return outcome, nil
}

func (s *VerificationService) replay(ctx context.Context, log *slog.Logger, payment *models.Payment, bypassed bool) *Outcome {
	outcome := &Outcome{
		OrderID:         payment.OrderID,
		PaymentID:       payment.PaymentID,
		Currency:        payment.Currency,
		PlanID:          payment.Plan,
		Bypassed:        bypassed,
		Replay:          true,
		PaymentRecordID: payment.ID,
		Customer: CustomerDetails{
			Email: payment.Email, Name: payment.Name, Phone: payment.Phone,
			Company: payment.Company, GST: payment.GSTNumber, Address: payment.Address,
		},
	}

	invoice, err := s.Store.FindInvoiceByPayment(ctx, payment.ID)
	if errors.Is(err, database.ErrNotFound) {
		invoice, err = s.IssueInvoice(ctx, payment)
		outcome.record(StepPersistInvoice, err)
	} else if err != nil {
		log.Error("failed to load invoice for replayed payment", "error", err)
	}

	if invoice != nil {
		outcome.InvoiceNumber = invoice.InvoiceNumber
		outcome.Amount = invoice.Total
	} else {
		outcome.Amount = s.Composer.Tax(invoices.FromRupees(payment.Amount), payment.GSTNumber).GrandTotal.Rupees()
	}

	log.Info("payment already verified, returning stored result", "invoice_number", outcome.InvoiceNumber)
	s.Metrics.Verifications.WithLabelValues("replay").Inc()
	return outcome
}

// IssueInvoice composes and stores the invoice for a payment that has none yet. A PDF is
// rendered and archived when those collaborators are configured; their failures are only logged.
func (s *VerificationService) IssueInvoice(ctx context.Context, payment *models.Payment) (*models.Invoice, error) {
	log := s.Logger.With("order_id", payment.OrderID, "payment_id", payment.PaymentID)

	draft := s.Composer.Compose(invoices.FromRupees(payment.Amount), payment.GSTNumber, payment.IsTest)
	invoice := invoiceRow(payment.ID, draft)
	if err := s.Store.CreateInvoice(ctx, invoice); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			stored, lookupErr := s.Store.FindInvoiceByPayment(ctx, payment.ID)
			if lookupErr == nil {
				log.Info("invoice already issued", "invoice_number", stored.InvoiceNumber)
				return stored, nil
			}
			err = lookupErr
		}
		s.Metrics.VerificationStepFails.WithLabelValues(StepPersistInvoice).Inc()
		return nil, fmt.Errorf("failed to persist invoice for payment %s: %w", payment.PaymentID, err)
	}

	data := invoices.Data{
		Number:   draft.Number,
		IssuedAt: draft.IssuedAt,
		Seller:   s.Seller,
		Customer: partyFor(CustomerDetails{
			Email: payment.Email, Name: payment.Name, Phone: payment.Phone,
			Company: payment.Company, GST: payment.GSTNumber, Address: payment.Address,
		}),
		Description: payment.Plan,
		OrderID:     payment.OrderID,
		PaymentID:   payment.PaymentID,
		Currency:    payment.Currency,
		Tax:         draft.Tax,
		IsTest:      draft.IsTest,
	}
	scratch := &Outcome{}
	pdf := s.renderPDF(ctx, log, data, scratch)
	s.archivePDF(ctx, log, invoice, data, pdf, scratch)

	log.Info("invoice issued", "invoice_number", invoice.InvoiceNumber)
	return invoice, nil
}

// persistInvoice stores the drafted invoice. When the payment already has one, the stored
// invoice wins and its number and total replace the draft's on the outcome.
func (s *VerificationService) persistInvoice(ctx context.Context, log *slog.Logger, paymentRecordID uuid.UUID, draft invoices.Draft, outcome *Outcome) *models.Invoice {
	invoice := invoiceRow(paymentRecordID, draft)
	err := s.Store.CreateInvoice(ctx, invoice)
	if errors.Is(err, database.ErrDuplicate) {
		stored, lookupErr := s.Store.FindInvoiceByPayment(ctx, paymentRecordID)
		if lookupErr == nil {
			log.Info("payment already invoiced, keeping the stored invoice", "invoice_number", stored.InvoiceNumber)
			outcome.InvoiceNumber = stored.InvoiceNumber
			outcome.Amount = stored.Total
			outcome.record(StepPersistInvoice, nil)
			return stored
		}
		err = lookupErr
	}
	if err != nil {
		log.Error("failed to persist invoice", "invoice_number", draft.Number, "error", err)
		outcome.record(StepPersistInvoice, err)
		return nil
	}
	outcome.record(StepPersistInvoice, nil)
	return invoice
}

func (s *VerificationService) resolveProduct(ctx context.Context, log *slog.Logger, req VerifyRequest) (invoices.Paise, string, string) {
	planID := req.PlanID
	var subtotal invoices.Paise
	var description string

	if req.Product != nil {
		subtotal = invoices.FromRupees(req.Product.Amount)
		description = req.Product.Name
	}

	if subtotal <= 0 || planID == "" {
		order, err := s.Store.FindOrder(ctx, req.OrderID)
		switch {
		case err == nil:
			if subtotal <= 0 {
				subtotal = invoices.FromRupees(order.Amount)
			}
			if planID == "" {
				planID = order.PlanID
			}
		case errors.Is(err, database.ErrNotFound):
			if subtotal <= 0 {
				log.Warn("no product amount and no stored order, invoicing zero")
			}
		default:
			log.Error("failed to load order for amount fallback", "error", err)
		}
	}

	if subtotal < 0 {
		subtotal = 0
	}
	if description == "" {
		description = planID
	}
	if description == "" {
		description = "PowerCA subscription"
	}
	return subtotal, planID, description
}

func (s *VerificationService) renderPDF(ctx context.Context, log *slog.Logger, data invoices.Data, outcome *Outcome) []byte {
	if s.Renderer == nil {
		outcome.skip(StepRenderPDF)
		return nil
	}
	pdf, err := s.Renderer.Render(ctx, data)
	if err != nil {
		log.Error("failed to render invoice PDF", "invoice_number", data.Number, "error", err)
		outcome.record(StepRenderPDF, err)
		return nil
	}
	outcome.record(StepRenderPDF, nil)
	return pdf
}

func (s *VerificationService) archivePDF(ctx context.Context, log *slog.Logger, invoice *models.Invoice, data invoices.Data, pdf []byte, outcome *Outcome) {
	if s.Archive == nil || invoice == nil || len(pdf) == 0 {
		outcome.skip(StepArchivePDF)
		return
	}
	url, err := s.Archive.Upload(ctx, data.FileName(), pdf)
	if err == nil {
		err = s.Store.SetInvoicePDFURL(ctx, invoice.ID, url)
	}
	if err != nil {
		log.Error("failed to archive invoice PDF", "invoice_number", data.Number, "error", err)
		outcome.record(StepArchivePDF, err)
		return
	}
	invoice.PDFURL = &url
	outcome.record(StepArchivePDF, nil)
}

func (s *VerificationService) sendConfirmation(ctx context.Context, log *slog.Logger, outcome *Outcome, description string, data invoices.Data, pdf []byte) {
	if s.Mailer == nil || outcome.Customer.Email == "" {
		outcome.skip(StepSendEmail)
		return
	}

	subject, body := notifications.PaymentConfirmation(
		outcome.Customer.Name, outcome.InvoiceNumber, description, data.Tax.GrandTotal.String(),
	)
	msg := notifications.Message{
		ToEmail: outcome.Customer.Email,
		ToName:  outcome.Customer.Name,
		Subject: subject,
		HTML:    body,
	}
	if len(pdf) > 0 {
		msg.Attachments = []notifications.Attachment{{FileName: data.FileName(), ContentType: "application/pdf", Content: pdf}}
	}

	if err := s.Mailer.Send(ctx, msg); err != nil {
		log.Error("failed to send payment confirmation", "email", outcome.Customer.Email, "error", err)
		outcome.record(StepSendEmail, err)
		return
	}
	outcome.record(StepSendEmail, nil)
}

func (s *VerificationService) report(log *slog.Logger, outcome *Outcome) {
	attrs := []any{
		"invoice_number", outcome.InvoiceNumber,
		"amount", outcome.Amount,
		"bypassed", outcome.Bypassed,
		"referral", string(outcome.Referral.Status),
	}
	for _, step := range outcome.Steps {
		attrs = append(attrs, step.Step, string(step.Status))
	}

	failed := outcome.FailedSteps()
	for _, step := range failed {
		s.Metrics.VerificationStepFails.WithLabelValues(step).Inc()
	}

	if len(failed) == 0 {
		s.Metrics.Verifications.WithLabelValues("verified").Inc()
		log.Info("payment verified", attrs...)
		return
	}

	s.Metrics.Verifications.WithLabelValues("degraded").Inc()
	log.Error("payment verified with failed bookkeeping steps", append(attrs, "failed_steps", failed)...)

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("order_id", outcome.OrderID)
		scope.SetTag("payment_id", outcome.PaymentID)
		scope.SetContext("verification", sentry.Context{"steps": outcome.Steps, "plan_id": outcome.PlanID})
		sentry.CaptureMessage("payment verification degraded: " + strings.Join(failed, ", "))
	})
}

func resolveCustomer(req VerifyRequest) CustomerDetails {
	var details CustomerDetails
	if req.Customer != nil {
		details = *req.Customer
	}
	if req.Session != nil {
		if details.Email == "" {
			details.Email = req.Session.Email
		}
		if details.Name == "" {
			details.Name = req.Session.Name
		}
	}
	details.Email = strings.ToLower(strings.TrimSpace(details.Email))
	details.Name = strings.TrimSpace(details.Name)
	return details
}

func partyFor(c CustomerDetails) invoices.Party {
	return invoices.Party{
		Name:    c.Name,
		Email:   c.Email,
		Phone:   c.Phone,
		Company: c.Company,
		GSTIN:   c.GST,
		Address: c.Address,
	}
}

func invoiceRow(paymentRecordID uuid.UUID, draft invoices.Draft) *models.Invoice {
	return &models.Invoice{
		InvoiceNumber: draft.Number,
		PaymentID:     paymentRecordID,
		Amount:        draft.Tax.Subtotal.Rupees(),
		CGST:          draft.Tax.CGST.Rupees(),
		SGST:          draft.Tax.SGST.Rupees(),
		IGST:          draft.Tax.IGST.Rupees(),
		GST:           draft.Tax.TotalTax.Rupees(),
		Total:         draft.Tax.GrandTotal.Rupees(),
		Status:        models.InvoiceStatusPaid,
		IsTest:        draft.IsTest,
	}
}
