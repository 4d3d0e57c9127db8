package mail

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"
)

// LogMailer is the dev/test transport: it writes sends to the log instead of
// talking to an SMTP server.
type LogMailer struct{}

func NewLogMailer() *LogMailer { return &LogMailer{} }

func (m *LogMailer) SendWelcome(ctx context.Context, in SendWelcomeInput) error {
	if err := simulate(ctx); err != nil {
		return err
	}

	log.Printf("mail.welcome email=%s name=%s", in.Email, in.Name)
	return nil
}

func (m *LogMailer) SendPasswordReset(ctx context.Context, in SendPasswordResetInput) error {
	if err := simulate(ctx); err != nil {
		return err
	}

	log.Printf("mail.password_reset email=%s url=%s", in.Email, in.ResetURL)
	return nil
}

func simulate(ctx context.Context) error {
	// Optional: simulate slow provider
	if msStr := os.Getenv("MAILER_SLEEP_MS"); msStr != "" {
		ms, _ := strconv.Atoi(msStr)
		if ms > 0 {
			select {
			case <-time.After(time.Duration(ms) * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	// Optional: simulate provider outage
	if os.Getenv("MAILER_FAIL") == "1" {
		return fmt.Errorf("provider down (simulated)")
	}

	return nil
}
