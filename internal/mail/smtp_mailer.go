package mail

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMTPMailer struct {
	cfg    SMTPConfig
	dialer *gomail.Dialer
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

func (m *SMTPMailer) SendWelcome(ctx context.Context, in SendWelcomeInput) error {
	body := fmt.Sprintf("Hi %s,\n\nYour account has been created. Welcome aboard.\n", in.Name)

	return m.send(ctx, in.Email, "Welcome", body)
}

func (m *SMTPMailer) SendPasswordReset(ctx context.Context, in SendPasswordResetInput) error {
	body := fmt.Sprintf(
		"Hi %s,\n\nA password reset was requested for your account. Follow this link within the next hour:\n\n%s\n\nIf you did not request this, ignore this message.\n",
		in.Name, in.ResetURL,
	)

	return m.send(ctx, in.Email, "Password reset", body)
}

// gomail has no context support; run the dial in a goroutine so a cancelled
// caller is not stuck behind a slow SMTP server.
func (m *SMTPMailer) send(ctx context.Context, to, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	done := make(chan error, 1)

	go func() {
		done <- m.dialer.DialAndSend(msg)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
