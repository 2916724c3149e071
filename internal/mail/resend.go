// Package mail sends notification copies by email through Resend.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/resend/resend-go/v3"
)

var notificationTemplate = template.Must(template.New("notification").Parse(`<!DOCTYPE html>
<html>
  <body style="font-family: sans-serif;">
    <h2>{{.Subject}}</h2>
    <p>{{.Body}}</p>
    <p style="color: #888;">You are receiving this because of activity on a facility request.</p>
  </body>
</html>`))

// sender is the part of the Resend client this package uses.
type sender interface {
	Send(params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// ResendMailer delivers emails through the Resend API.
type ResendMailer struct {
	emails sender
	from   string
}

// NewResendMailer creates a mailer for apiKey sending as from.
func NewResendMailer(apiKey, from string) *ResendMailer {
	client := resend.NewClient(apiKey)
	return &ResendMailer{emails: client.Emails, from: from}
}

// Send renders body into the notification layout and sends it.
func (m *ResendMailer) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var html bytes.Buffer
	if err := notificationTemplate.Execute(&html, struct{ Subject, Body string }{subject, body}); err != nil {
		return fmt.Errorf("render email: %w", err)
	}

	_, err := m.emails.Send(&resend.SendEmailRequest{
		From:    m.from,
		To:      []string{to},
		Subject: subject,
		Html:    html.String(),
		Text:    body,
	})
	if err != nil {
		return fmt.Errorf("send email to %s: %w", to, err)
	}
	return nil
}
