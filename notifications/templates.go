package notifications

import (
	"fmt"
	"html"
	"time"
)

func PaymentConfirmation(name, invoiceNumber, planName, amount string) (string, string) {
	subject := fmt.Sprintf("Payment received - Invoice %s", invoiceNumber)
	body := fmt.Sprintf(
		"<h1>Thank you for choosing PowerCA</h1>"+
			"<p>Hi %s,</p>"+
			"<p>We have received your payment of <b>INR %s</b> for <b>%s</b>.</p>"+
			"<p>Your invoice number is <b>%s</b>. A copy is attached when available.</p>"+
			"<p>Team PowerCA</p>",
		html.EscapeString(name), html.EscapeString(amount), html.EscapeString(planName), html.EscapeString(invoiceNumber),
	)
	return subject, body
}

func DemoConfirmation(name string, at time.Time) (string, string) {
	subject := "Your PowerCA demo is booked"
	body := fmt.Sprintf(
		"<h1>Demo Confirmed</h1><p>Hi %s,</p><p>Your PowerCA walkthrough is scheduled for %s.</p>",
		html.EscapeString(name), at.Format("Mon, 02 Jan 2006 15:04 MST"),
	)
	return subject, body
}

func DemoReminder(name string, at time.Time) (string, string) {
	subject := "Reminder: Your PowerCA demo starts in 1 hour"
	body := fmt.Sprintf(
		"<h1>Demo Reminder</h1><p>Hi %s,</p><p>This is a friendly reminder that your demo starts at %s.</p>",
		html.EscapeString(name), at.Format(time.Kitchen),
	)
	return subject, body
}

func Welcome(name string, trialEnds time.Time) (string, string) {
	subject := "Welcome to PowerCA!"
	body := fmt.Sprintf(
		"<h1>Welcome!</h1><p>Hi %s,</p><p>Your free trial is active until %s.</p>",
		html.EscapeString(name), trialEnds.Format("02 Jan 2006"),
	)
	return subject, body
}
