// Package mailer delivers magic codes and invitation links over SendGrid.
// Without an API key (local development) nothing is sent and messages are
// logged instead.
package mailer

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Mailer sends transactional email.
type Mailer struct {
	client   *sendgrid.Client
	from     string
	baseURL  string
	disabled bool
}

// New creates a Mailer. An empty apiKey disables real delivery.
func New(apiKey, from, baseURL string) *Mailer {
	m := &Mailer{from: from, baseURL: baseURL}
	if apiKey == "" {
		m.disabled = true
		return m
	}
	m.client = sendgrid.NewSendClient(apiKey)
	return m
}

// SendMagicCode emails a one-time login code.
func (m *Mailer) SendMagicCode(email, code string, ttlMinutes int) error {
	subject := "Your Postika login code"
	body := fmt.Sprintf("Your login code is: %s\n\nIt expires in %d minutes.", code, ttlMinutes)
	return m.send(email, subject, body)
}

// SendTenantInvite emails a tenant invitation accept link.
func (m *Mailer) SendTenantInvite(email, tenantName, token string) error {
	subject := fmt.Sprintf("You have been invited to %s on Postika", tenantName)
	body := fmt.Sprintf("You have been invited to join %s.\n\nAccept here: %s/invitations/accept?token=%s", tenantName, m.baseURL, token)
	return m.send(email, subject, body)
}

// SendPlatformInvite emails a platform invitation accept link.
func (m *Mailer) SendPlatformInvite(email, inviteeType, token string) error {
	subject := "You have been invited to the Postika platform"
	body := fmt.Sprintf("You have been invited to Postika as %s.\n\nAccept here: %s/platform/accept?token=%s", inviteeType, m.baseURL, token)
	return m.send(email, subject, body)
}

func (m *Mailer) send(to, subject, body string) error {
	if m.disabled {
		log.Info().Str("to", to).Str("subject", subject).Msg("Mailer disabled, skipping email")
		return nil
	}

	message := mail.NewSingleEmail(
		mail.NewEmail("Postika", m.from),
		subject,
		mail.NewEmail("", to),
		body,
		"",
	)

	resp, err := m.client.Send(message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid returned status %d: %s", resp.StatusCode, resp.Body)
	}

	log.Info().Str("to", to).Str("subject", subject).Int("status", resp.StatusCode).Msg("Email sent")
	return nil
}
