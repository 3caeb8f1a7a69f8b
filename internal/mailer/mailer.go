// Package mailer delivers digest emails over SMTP.
package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/mark2rocket/ag-studyletter/internal/domain"
)

// Mailer sends plain-text emails.
type Mailer interface {
	// Send delivers a single message to the recipient. The context should be
	// used for cancellation and deadline propagation.
	Send(ctx context.Context, to, subject, body string) error
}

// Config holds the parameters needed to create an SMTP mailer.
// This is defined in the mailer package to avoid importing the config package.
type Config struct {
	// Host is the SMTP server hostname.
	Host string
	// Port is the SMTP server port.
	Port int
	// SenderEmail is the authenticated sender address.
	SenderEmail string
	// SenderPassword is the SMTP password or app password.
	SenderPassword string
	// Timeout is the connection timeout for SMTP operations.
	Timeout time.Duration
}

// SMTPMailer sends mail through an SMTP server using STARTTLS and PLAIN
// authentication. It is safe for concurrent use; each Send opens its own
// connection.
type SMTPMailer struct {
	client *mail.Client
	sender string
}

// Ensure SMTPMailer implements Mailer.
var _ Mailer = (*SMTPMailer)(nil)

// NewSMTPMailer creates a new SMTP mailer. It fails fast with a configuration
// error when the sender credentials are missing, before any network I/O.
func NewSMTPMailer(cfg Config) (*SMTPMailer, error) {
	if cfg.SenderEmail == "" {
		return nil, domain.NewConfigError("SENDER_EMAIL")
	}
	if cfg.SenderPassword == "" {
		return nil, domain.NewConfigError("SENDER_PASSWORD")
	}
	if cfg.Host == "" {
		return nil, domain.NewConfigError("smtp.host")
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.SenderEmail),
		mail.WithPassword(cfg.SenderPassword),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(cfg.Timeout))
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating SMTP client: %w", err)
	}

	return &SMTPMailer{
		client: client,
		sender: cfg.SenderEmail,
	}, nil
}

// Send delivers a plain-text message to the recipient.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	msg := mail.NewMsg()
	if err := msg.From(m.sender); err != nil {
		return fmt.Errorf("setting sender address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("setting recipient address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending mail to %s: %w", to, err)
	}

	return nil
}
