package mail

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPMailer_SendVerificationCode(t *testing.T) {
	m, err := NewSMTPMailer(SMTPConfig{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "user",
		Password: "pass",
		From:     `"My App" <no-reply@myapp.com>`,
	})
	require.NoError(t, err)

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	expires := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, m.SendVerificationCode(context.Background(), "a@x.com", "123456", expires))

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "no-reply@myapp.com", gotFrom)
	assert.Equal(t, []string{"a@x.com"}, gotTo)
	msg := string(gotMsg)
	assert.Contains(t, msg, "Subject: Your verification code\r\n")
	assert.Contains(t, msg, "Your verification code is: 123456")
	assert.True(t, strings.HasPrefix(msg, "From: "))
}

func TestSMTPMailer_errors(t *testing.T) {
	_, err := NewSMTPMailer(SMTPConfig{Host: "", From: "a@x.com"})
	require.Error(t, err)

	_, err = NewSMTPMailer(SMTPConfig{Host: "h", From: "not an address"})
	require.Error(t, err)

	m, err := NewSMTPMailer(SMTPConfig{Host: "h", Port: 25, From: "a@x.com"})
	require.NoError(t, err)
	m.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("relay down") }

	err = m.SendVerificationCode(context.Background(), "b@x.com", "1", time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relay down")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.SendVerificationCode(ctx, "b@x.com", "1", time.Now()), context.Canceled)
}

func TestLogMailer(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	require.NoError(t, NewLogMailer(logger, false).SendVerificationCode(context.Background(), "john@x.com", "654321", time.Now()))
	assert.NotContains(t, buf.String(), "654321")
	assert.NotContains(t, buf.String(), "john@x.com")

	buf.Reset()
	require.NoError(t, NewLogMailer(logger, true).SendVerificationCode(context.Background(), "john@x.com", "654321", time.Now()))
	assert.Contains(t, buf.String(), "654321")
}
