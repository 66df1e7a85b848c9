// Package mail delivers verification codes to users.
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/authflow/server/internal/logging"
)

const verificationSubject = "Your verification code"

// Mailer sends verification codes.
type Mailer interface {
	SendVerificationCode(ctx context.Context, to, code string, expiresAt time.Time) error
}

// LogMailer writes the notification to the log instead of sending it. The code
// itself is only logged when revealCode is set (local development).
type LogMailer struct {
	logger     *slog.Logger
	revealCode bool
}

func NewLogMailer(logger *slog.Logger, revealCode bool) *LogMailer {
	return &LogMailer{logger: logger, revealCode: revealCode}
}

func (m *LogMailer) SendVerificationCode(ctx context.Context, to, code string, expiresAt time.Time) error {
	attrs := []any{
		"to", logging.MaskEmail(to),
		"expires_at", expiresAt,
	}
	if m.revealCode {
		attrs = append(attrs, "code", code)
	}
	m.logger.InfoContext(ctx, "verification code issued", attrs...)
	return nil
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer sends mail through an SMTP relay with PLAIN auth.
type SMTPMailer struct {
	addr string
	from *mail.Address
	auth smtp.Auth
	send sendFunc
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	from, err := mail.ParseAddress(cfg.From)
	if err != nil {
		return nil, fmt.Errorf("invalid from address %q: %w", cfg.From, err)
	}
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPMailer{
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		from: from,
		auth: auth,
		send: smtp.SendMail,
	}, nil
}

func (m *SMTPMailer) SendVerificationCode(ctx context.Context, to, code string, expiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rcpt, err := mail.ParseAddress(to)
	if err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}

	body := fmt.Sprintf("Your verification code is: %s\r\nIt expires at %s.\r\n",
		code, expiresAt.UTC().Format(time.RFC1123))
	msg := buildMessage(m.from, rcpt, verificationSubject, body)

	if err := m.send(m.addr, m.auth, m.from.Address, []string{rcpt.Address}, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func buildMessage(from, to *mail.Address, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from.String() + "\r\n")
	b.WriteString("To: " + to.String() + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
