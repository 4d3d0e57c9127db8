package handlers

import (
	"context"
	"errors"

	"github.com/marcwilhelm/authhub/internal/observability"
	"github.com/marcwilhelm/authhub/internal/service"
)

// MetricsAuthenticator counts auth operation outcomes. Denials (bad
// credentials, dead tokens, disabled accounts) are separated from hard
// failures so a credential-stuffing run doesn't look like an outage.
type MetricsAuthenticator struct {
	inner Authenticator
	prom  *observability.Prom
}

func NewMetricsAuthenticator(inner Authenticator, prom *observability.Prom) *MetricsAuthenticator {
	return &MetricsAuthenticator{inner: inner, prom: prom}
}

func (m *MetricsAuthenticator) Register(ctx context.Context, name, email, password, role string) (*service.Session, error) {
	session, err := m.inner.Register(ctx, name, email, password, role)
	m.observe("register", err)
	return session, err
}

func (m *MetricsAuthenticator) Login(ctx context.Context, email, password string) (*service.Session, error) {
	session, err := m.inner.Login(ctx, email, password)
	m.observe("login", err)
	return session, err
}

func (m *MetricsAuthenticator) Refresh(ctx context.Context, refreshToken string) (string, error) {
	accessToken, err := m.inner.Refresh(ctx, refreshToken)
	m.observe("refresh", err)
	return accessToken, err
}

func (m *MetricsAuthenticator) Logout(ctx context.Context, userID string) error {
	err := m.inner.Logout(ctx, userID)
	m.observe("logout", err)
	return err
}

func (m *MetricsAuthenticator) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	token, err := m.inner.RequestPasswordReset(ctx, email)
	m.observe("reset_request", err)
	return token, err
}

func (m *MetricsAuthenticator) CompletePasswordReset(ctx context.Context, token, newPassword string) error {
	err := m.inner.CompletePasswordReset(ctx, token, newPassword)
	m.observe("reset_complete", err)
	return err
}

func (m *MetricsAuthenticator) observe(op string, err error) {
	result := "ok"

	if err != nil {
		result = "error"

		var svcErr *service.Error
		if errors.As(err, &svcErr) {
			switch svcErr.Kind {
			case service.KindInvalidCredentials, service.KindAccountDisabled,
				service.KindInvalidToken, service.KindTokenExpired, service.KindMissingToken:
				result = "denied"
			}
		}
	}

	m.prom.AuthAttempts.WithLabelValues(op, result).Inc()
}
