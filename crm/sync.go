package crm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/powerca/backoffice/metrics"
	"github.com/powerca/backoffice/models"
)

const (
	OpAfterUserCreate       = "after_user_create"
	OpAfterDemoScheduled    = "after_demo_scheduled"
	OpAfterPaymentCompleted = "after_payment_completed"
	OpAfterTrialStarted     = "after_trial_started"
	OpTrackUserActivity     = "track_user_activity"
	OpUpdateUserProperties  = "update_user_properties"

	syncTimeout = 15 * time.Second
)

type PaymentEvent struct {
	Email         string
	Name          string
	Phone         string
	Company       string
	PlanID        string
	Amount        float64
	InvoiceNumber string
	OrderID       string
	PaymentID     string
}

// Sync mirrors domain events into the CRM. Its methods never return errors: a CRM
// failure is logged and counted, and the caller carries on.
type Sync struct {
	client  Client
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewSync(client Client, logger *slog.Logger, m *metrics.Metrics) *Sync {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &Sync{client: client, logger: logger, metrics: m, now: time.Now}
}

func (s *Sync) AfterUserCreate(ctx context.Context, user *models.User) {
	s.run(ctx, OpAfterUserCreate, user.Email, func(ctx context.Context) error {
		first, last := splitName(user.FullName)
		props := map[string]string{
			"email":          user.Email,
			"firstname":      first,
			"lastname":       last,
			"phone":          user.Phone,
			"company":        user.Company,
			"city":           user.City,
			"lifecyclestage": "lead",
		}
		if err := s.upsert(ctx, user.Email, props); err != nil {
			return err
		}
		return s.track(ctx, "user_registered", user.Email, map[string]string{"firm_size": user.FirmSize})
	})
}

func (s *Sync) AfterTrialStarted(ctx context.Context, user *models.User) {
	s.run(ctx, OpAfterTrialStarted, user.Email, func(ctx context.Context) error {
		props := map[string]string{"email": user.Email, "lifecyclestage": "marketingqualifiedlead"}
		eventProps := map[string]string{}
		if user.TrialEndsAt != nil {
			props["trial_end_date"] = user.TrialEndsAt.UTC().Format("2006-01-02")
			eventProps["trial_end_date"] = props["trial_end_date"]
		}
		if err := s.upsert(ctx, user.Email, props); err != nil {
			return err
		}
		return s.track(ctx, "trial_started", user.Email, eventProps)
	})
}

func (s *Sync) AfterDemoScheduled(ctx context.Context, demo *models.DemoBooking) {
	s.run(ctx, OpAfterDemoScheduled, demo.Email, func(ctx context.Context) error {
		first, last := splitName(demo.Name)
		props := map[string]string{
			"email":          demo.Email,
			"firstname":      first,
			"lastname":       last,
			"phone":          demo.Phone,
			"company":        demo.Company,
			"lifecyclestage": "salesqualifiedlead",
			"demo_date":      demo.ScheduledAt.UTC().Format(time.RFC3339),
		}
		if err := s.upsert(ctx, demo.Email, props); err != nil {
			return err
		}
		return s.track(ctx, "demo_scheduled", demo.Email, map[string]string{
			"scheduled_at": props["demo_date"],
			"firm_size":    demo.FirmSize,
		})
	})
}

func (s *Sync) AfterPaymentCompleted(ctx context.Context, payment PaymentEvent) {
	s.run(ctx, OpAfterPaymentCompleted, payment.Email, func(ctx context.Context) error {
		first, last := splitName(payment.Name)
		amount := strconv.FormatFloat(payment.Amount, 'f', 2, 64)
		props := map[string]string{
			"email":          payment.Email,
			"firstname":      first,
			"lastname":       last,
			"phone":          payment.Phone,
			"company":        payment.Company,
			"lifecyclestage": "customer",
			"plan":           payment.PlanID,
			"last_payment":   amount,
		}
		if err := s.upsert(ctx, payment.Email, props); err != nil {
			return err
		}
		return s.track(ctx, "payment_completed", payment.Email, map[string]string{
			"amount":         amount,
			"plan":           payment.PlanID,
			"invoice_number": payment.InvoiceNumber,
			"order_id":       payment.OrderID,
			"payment_id":     payment.PaymentID,
		})
	})
}

func (s *Sync) TrackUserActivity(ctx context.Context, email, activity string, properties map[string]string) {
	s.run(ctx, OpTrackUserActivity, email, func(ctx context.Context) error {
		if activity == "" {
			return errors.New("activity name is empty")
		}
		return s.track(ctx, activity, email, properties)
	})
}

func (s *Sync) UpdateUserProperties(ctx context.Context, email string, properties map[string]string) {
	s.run(ctx, OpUpdateUserProperties, email, func(ctx context.Context) error {
		props := make(map[string]string, len(properties)+2)
		for k, v := range properties {
			props[k] = v
		}
		if full, ok := props["full_name"]; ok {
			delete(props, "full_name")
			props["firstname"], props["lastname"] = splitName(full)
		}
		props["email"] = email
		return s.upsert(ctx, email, props)
	})
}

// upsert resolves the contact by email: update when found, create otherwise, and on a
// create conflict search once more and update.
func (s *Sync) upsert(ctx context.Context, email string, properties map[string]string) error {
	props := compact(properties)

	existing, err := s.client.SearchContactByEmail(ctx, email)
	if err != nil {
		return err
	}
	if existing != nil {
		_, err = s.client.UpdateContact(ctx, existing.ID, props)
		return err
	}

	_, err = s.client.CreateContact(ctx, props)
	if !errors.Is(err, ErrConflict) {
		return err
	}

	existing, err = s.client.SearchContactByEmail(ctx, email)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("contact %s conflicted on create but was not found", email)
	}
	_, err = s.client.UpdateContact(ctx, existing.ID, props)
	return err
}

func (s *Sync) track(ctx context.Context, name, email string, properties map[string]string) error {
	return s.client.TrackEvent(ctx, Event{Name: name, Email: email, Properties: compact(properties), OccurredAt: s.now()})
}

func (s *Sync) run(ctx context.Context, op, email string, fn func(context.Context) error) {
	if s == nil || s.client == nil {
		return
	}
	if strings.TrimSpace(email) == "" {
		s.metrics.CRMSync.WithLabelValues(op, "skipped").Inc()
		return
	}

	ctx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			s.metrics.CRMSync.WithLabelValues(op, "error").Inc()
			s.logger.Error("crm sync panicked", "operation", op, "email", email, "panic", r)
		}
	}()

	if err := fn(ctx); err != nil {
		s.metrics.CRMSync.WithLabelValues(op, "error").Inc()
		s.logger.Error("crm sync failed", "operation", op, "email", email, "error", err)
		return
	}
	s.metrics.CRMSync.WithLabelValues(op, "ok").Inc()
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

func compact(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		if v != "" {
			out[k] = v
		}
	}
	return out
}
