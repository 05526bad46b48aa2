package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/powerca/backoffice/database"
	"github.com/powerca/backoffice/invoices"
	"github.com/powerca/backoffice/models"
	"github.com/powerca/backoffice/notifications"
	"github.com/powerca/backoffice/payments"
	"github.com/powerca/backoffice/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func setupStore(t *testing.T) *database.Store {
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return database.NewStore(db)
}

type failingIssuer struct{}

func (failingIssuer) IssueInvoice(context.Context, *models.Payment) (*models.Invoice, error) {
	return nil, errors.New("disk full")
}

func TestReconciler_RepairsOrphans(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateOrder(ctx, &models.PaymentOrder{OrderID: "order_1", Amount: 1000, Status: models.OrderStatusCreated}))
	payment := &models.Payment{OrderID: "order_1", PaymentID: "pay_1", Amount: 1000, Currency: "INR", Status: models.PaymentStatusSuccess, Plan: "annual"}
	require.NoError(t, store.CreatePayment(ctx, payment))

	verification := services.NewVerificationService(services.VerificationDeps{
		Store:    store,
		Verifier: payments.NewVerifier("secret", true),
		Composer: invoices.NewComposer(invoices.NewNumberer(nil), false, "33"),
		Logger:   quiet,
	})

	result := NewReconciler(store, verification, quiet).Run(ctx)
	assert.Equal(t, ReconcileResult{InvoicesIssued: 1, OrdersMarked: 1}, result)

	inv, err := store.FindInvoiceByPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, 1180.0, inv.Total)

	order, err := store.FindOrder(ctx, "order_1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, order.Status)

	assert.Equal(t, ReconcileResult{}, NewReconciler(store, verification, quiet).Run(ctx), "second run finds nothing")
}

func TestReconciler_CountsIssueFailures(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreatePayment(ctx, &models.Payment{OrderID: "order_2", PaymentID: "pay_2", Amount: 50, Status: models.PaymentStatusSuccess}))

	result := NewReconciler(store, failingIssuer{}, quiet).Run(ctx)
	assert.Equal(t, 1, result.InvoiceErrors)
	assert.Zero(t, result.InvoicesIssued)
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []notifications.Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg notifications.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func TestDemoReminder(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

	due := &models.DemoBooking{Name: "Ravi", Email: "ravi@firm.in", ScheduledAt: base.Add(63 * time.Minute), Status: models.DemoStatusScheduled}
	later := &models.DemoBooking{Name: "Meena", Email: "meena@firm.in", ScheduledAt: base.Add(5 * time.Hour), Status: models.DemoStatusScheduled}
	require.NoError(t, store.CreateDemoBooking(ctx, due))
	require.NoError(t, store.CreateDemoBooking(ctx, later))

	mailer := &recordingMailer{}
	job := NewDemoReminder(store, mailer, quiet)
	job.now = func() time.Time { return base }

	assert.Equal(t, 1, job.Run(ctx))
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "ravi@firm.in", mailer.sent[0].ToEmail)

	assert.Zero(t, job.Run(ctx), "a reminded demo is not emailed twice")
}

func TestDemoReminder_SendFailureLeavesBookingDue(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateDemoBooking(ctx, &models.DemoBooking{
		Name: "Ravi", Email: "ravi@firm.in", ScheduledAt: base.Add(61 * time.Minute), Status: models.DemoStatusScheduled,
	}))

	mailer := &recordingMailer{err: errors.New("smtp down")}
	job := NewDemoReminder(store, mailer, quiet)
	job.now = func() time.Time { return base }
	assert.Zero(t, job.Run(ctx))

	mailer.err = nil
	assert.Equal(t, 1, job.Run(ctx))
}

func TestDemoReminder_NoMailer(t *testing.T) {
	job := NewDemoReminder(setupStore(t), nil, quiet)
	assert.Zero(t, job.Run(context.Background()))
}
