package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/powerca/backoffice/models"
	"github.com/powerca/backoffice/notifications"
)

type ReminderStore interface {
	DemosStartingBetween(ctx context.Context, from, to time.Time) ([]models.DemoBooking, error)
	MarkDemoReminded(ctx context.Context, id uuid.UUID, at time.Time) error
}

// DemoReminder emails bookings whose demo starts in roughly an hour. The five minute
// window matches the cron cadence; reminded rows drop out of the query.
type DemoReminder struct {
	store  ReminderStore
	mailer notifications.Mailer
	logger *slog.Logger
	now    func() time.Time
}

func NewDemoReminder(store ReminderStore, mailer notifications.Mailer, logger *slog.Logger) *DemoReminder {
	return &DemoReminder{store: store, mailer: mailer, logger: logger, now: time.Now}
}

// Run returns the number of reminders sent.
func (d *DemoReminder) Run(ctx context.Context) int {
	log := d.logger.With("job", "demo_reminder")
	if d.mailer == nil {
		log.Debug("mailer not configured, skipping demo reminders")
		return 0
	}

	now := d.now()
	upcoming, err := d.store.DemosStartingBetween(ctx, now.Add(60*time.Minute), now.Add(65*time.Minute))
	if err != nil {
		log.Error("error checking for upcoming demos", "error", err)
		return 0
	}

	sent := 0
	for _, booking := range upcoming {
		subject, body := notifications.DemoReminder(booking.Name, booking.ScheduledAt)
		err := d.mailer.Send(ctx, notifications.Message{
			ToEmail: booking.Email, ToName: booking.Name, Subject: subject, HTML: body,
		})
		if err != nil {
			log.Error("failed to send demo reminder", "booking_id", booking.ID, "error", err)
			continue
		}
		if err := d.store.MarkDemoReminded(ctx, booking.ID, now); err != nil {
			log.Error("failed to mark demo reminded", "booking_id", booking.ID, "error", err)
		}
		sent++
	}
	if sent > 0 {
		log.Info("demo reminders sent", "count", sent)
	}
	return sent
}
