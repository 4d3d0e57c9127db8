package mail

import (
	"context"

	"github.com/marcwilhelm/authhub/internal/observability"
)

// MetricsMailer counts and times every send.
type MetricsMailer struct {
	inner Mailer
	prom  *observability.Prom
}

func NewMetricsMailer(inner Mailer, prom *observability.Prom) *MetricsMailer {
	return &MetricsMailer{inner: inner, prom: prom}
}

func (m *MetricsMailer) SendWelcome(ctx context.Context, input SendWelcomeInput) error {
	return m.prom.ObserveMail("welcome", func() error {
		return m.inner.SendWelcome(ctx, input)
	})
}

func (m *MetricsMailer) SendPasswordReset(ctx context.Context, input SendPasswordResetInput) error {
	return m.prom.ObserveMail("password_reset", func() error {
		return m.inner.SendPasswordReset(ctx, input)
	})
}
