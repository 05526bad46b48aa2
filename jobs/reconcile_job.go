package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/powerca/backoffice/models"
)

const reconcileBatch = 100

type ReconcileStore interface {
	PaymentsWithoutInvoice(ctx context.Context, limit int) ([]models.Payment, error)
	UnpaidOrdersWithPayment(ctx context.Context, limit int) ([]models.PaymentOrder, error)
	MarkOrderPaid(ctx context.Context, orderID string, at time.Time) (bool, error)
}

type InvoiceIssuer interface {
	IssueInvoice(ctx context.Context, payment *models.Payment) (*models.Invoice, error)
}

type ReconcileResult struct {
	InvoicesIssued int
	InvoiceErrors  int
	OrdersMarked   int
	OrderErrors    int
}

// Reconciler repairs rows left behind when a verification completed with failed steps.
type Reconciler struct {
	store  ReconcileStore
	issuer InvoiceIssuer
	logger *slog.Logger
	now    func() time.Time
}

func NewReconciler(store ReconcileStore, issuer InvoiceIssuer, logger *slog.Logger) *Reconciler {
	return &Reconciler{store: store, issuer: issuer, logger: logger, now: time.Now}
}

func (r *Reconciler) Run(ctx context.Context) ReconcileResult {
	var result ReconcileResult
	log := r.logger.With("job", "reconcile")

	payments, err := r.store.PaymentsWithoutInvoice(ctx, reconcileBatch)
	if err != nil {
		log.Error("error loading payments without invoice", "error", err)
	}
	for i := range payments {
		if _, err := r.issuer.IssueInvoice(ctx, &payments[i]); err != nil {
			result.InvoiceErrors++
			log.Error("failed to issue missing invoice", "payment_id", payments[i].PaymentID, "error", err)
			continue
		}
		result.InvoicesIssued++
	}

	orders, err := r.store.UnpaidOrdersWithPayment(ctx, reconcileBatch)
	if err != nil {
		log.Error("error loading unpaid orders", "error", err)
	}
	for _, order := range orders {
		updated, err := r.store.MarkOrderPaid(ctx, order.OrderID, r.now())
		if err != nil {
			result.OrderErrors++
			log.Error("failed to mark order paid", "order_id", order.OrderID, "error", err)
			continue
		}
		if updated {
			result.OrdersMarked++
		}
	}

	if result == (ReconcileResult{}) {
		log.Debug("nothing to reconcile")
		return result
	}
	log.Info("reconciliation finished",
		"invoices_issued", result.InvoicesIssued,
		"invoice_errors", result.InvoiceErrors,
		"orders_marked", result.OrdersMarked,
		"order_errors", result.OrderErrors,
	)
	return result
}
