package notifications

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	config "github.com/powerca/backoffice/configs"
)

type Attachment struct {
	FileName    string
	ContentType string
	Content     []byte
}

type Message struct {
	ToEmail     string
	ToName      string
	Subject     string
	HTML        string
	Attachments []Attachment
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

var ErrInvalidRecipient = errors.New("invalid recipient email")

// NewMailer picks SendGrid when a key is configured, then Brevo. It returns nil when no
// provider is configured; callers treat a nil Mailer as "skip sending".
func NewMailer(cfg *config.Settings) Mailer {
	if cfg.EmailSender == "" {
		log.Println("⚠️ Email service not configured. Missing EMAIL_SENDER.")
		return nil
	}

	switch {
	case cfg.SendGridAPIKey != "":
		log.Println("✅ Email service initialized with SendGrid.")
		return NewSendGridMailer(cfg.SendGridAPIKey, cfg.EmailSender, cfg.EmailSenderName)
	case cfg.BrevoAPIKey != "":
		log.Println("✅ Email service initialized with Brevo.")
		return NewBrevoMailer(cfg.BrevoAPIKey, cfg.EmailSender, cfg.EmailSenderName)
	default:
		log.Println("⚠️ Email service not configured. Missing SENDGRID_API_KEY or BREVO_API_KEY.")
		return nil
	}
}

func validateRecipient(msg *Message) error {
	if msg.ToEmail == "" || !strings.Contains(msg.ToEmail, "@") {
		return fmt.Errorf("%w: %q", ErrInvalidRecipient, msg.ToEmail)
	}
	if msg.ToName == "" {
		msg.ToName = msg.ToEmail[:strings.Index(msg.ToEmail, "@")]
	}
	return nil
}

// SendEmail sends msg in the background-friendly fire-and-forget style: failures are only logged.
func SendEmail(ctx context.Context, mailer Mailer, msg Message) {
	if mailer == nil {
		log.Println("Email client not initialized, skipping email send.")
		return
	}

	if err := mailer.Send(ctx, msg); err != nil {
		log.Printf("🔥 Failed to send email to %s: %v", msg.ToEmail, err)
		return
	}

	log.Printf("✅ Email sent successfully to %s", msg.ToEmail)
}
