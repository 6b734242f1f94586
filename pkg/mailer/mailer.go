// Package mailer sends email over SMTP. The defaults point at Mailtrap
// (smtp.mailtrap.io:2525), which is useful for development and testing
// environments; any SMTP relay with PLAIN auth works.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Config contains the SMTP relay settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer delivers plain-text or HTML messages through an SMTP relay.
type SMTPMailer struct {
	cfg    Config
	send   SendFunc
	now    func() time.Time
	logger *zap.Logger
}

// NewSMTPMailer validates cfg and returns a mailer using smtp.SendMail.
func NewSMTPMailer(cfg Config, logger *zap.Logger) (*SMTPMailer, error) {
	if cfg.Host == "" || cfg.Port <= 0 {
		return nil, errors.New("SMTP host and port must be provided")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("SMTP username and password must be provided")
	}
	if _, err := mail.ParseAddress(cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender address '%s': %w", cfg.From, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMTPMailer{cfg: cfg, send: smtp.SendMail, now: time.Now, logger: logger}, nil
}

// WithSendFunc replaces the transport. Used in tests.
func (m *SMTPMailer) WithSendFunc(send SendFunc) *SMTPMailer {
	m.send = send
	return m
}

// Send delivers one message to recipient. The Content-Type is inferred from
// the body: bodies containing <html> or <p> are sent as HTML.
func (m *SMTPMailer) Send(ctx context.Context, recipient, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if recipient == "" {
		return errors.New("recipient email address cannot be empty")
	}
	if subject == "" {
		return errors.New("email subject cannot be empty")
	}
	to, err := mail.ParseAddress(recipient)
	if err != nil {
		return fmt.Errorf("invalid recipient address '%s': %w", recipient, err)
	}
	from, _ := mail.ParseAddress(m.cfg.From)

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	msg := buildMessage(from, to, subject, body, m.now())
	if err := m.send(addr, auth, from.Address, []string{to.Address}, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	m.logger.Debug("Email sent", zap.String("recipient", to.Address), zap.String("subject", subject))
	return nil
}

func buildMessage(from, to *mail.Address, subject, body string, date time.Time) []byte {
	contentType := "text/plain; charset=UTF-8"
	lower := strings.ToLower(body)
	if strings.Contains(lower, "<html>") || strings.Contains(lower, "<p>") {
		contentType = "text/html; charset=UTF-8"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from.String())
	fmt.Fprintf(&b, "To: %s\r\n", to.String())
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", date.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: %s\r\n", contentType)
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(body, "\r\n", "\n"), "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}
