package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"reseller-ledger/internal/domain"
	"reseller-ledger/internal/logger"
)

type mailSender interface {
	Send(email *mail.SGMailV3) (*rest.Response, error)
}

// EmailAlerter mails operator alerts through SendGrid.
type EmailAlerter struct {
	client    mailSender
	fromEmail string
	fromName  string
	to        []string
}

func NewEmailAlerter(apiKey, fromEmail, fromName string, operators []string) *EmailAlerter {
	return &EmailAlerter{
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
		to:        operators,
	}
}

func (s *EmailAlerter) Alert(ctx context.Context, a domain.Alert) error {
	if len(s.to) == 0 {
		return nil
	}
	message := BuildAlertEmail(mail.NewEmail(s.fromName, s.fromEmail), s.to, a)

	logger.ExternalServiceCall("sendgrid", "Send", "subject", a.Subject, "recipients", len(s.to))
	response, err := s.client.Send(message)
	if err != nil {
		logger.ExternalServiceResult("sendgrid", "Send", err)
		return fmt.Errorf("failed to send alert email: %w", err)
	}
	if response.StatusCode >= 400 {
		err = fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
		logger.ExternalServiceResult("sendgrid", "Send", err)
		return err
	}
	logger.ExternalServiceResult("sendgrid", "Send", nil, "status", response.StatusCode)
	return nil
}

// BuildAlertEmail renders an alert as one message addressed to every
// operator.
func BuildAlertEmail(from *mail.Email, to []string, a domain.Alert) *mail.SGMailV3 {
	subject := "[ledger] " + a.Subject

	var plain strings.Builder
	plain.WriteString(a.Body)
	if a.BusinessTxnID != "" {
		fmt.Fprintf(&plain, "\n\nTransaction: %s", a.BusinessTxnID)
	}
	if a.UserID != 0 {
		fmt.Fprintf(&plain, "\nUser: %d", a.UserID)
	}
	htmlContent := "<pre>" + html.EscapeString(plain.String()) + "</pre>"

	message := mail.NewV3Mail()
	message.SetFrom(from)
	message.Subject = subject

	p := mail.NewPersonalization()
	for _, addr := range to {
		p.AddTos(mail.NewEmail("", addr))
	}
	message.AddPersonalizations(p)
	message.AddContent(mail.NewContent("text/plain", plain.String()), mail.NewContent("text/html", htmlContent))
	return message
}
