package mail

import "context"

type SendWelcomeInput struct {
	Email string
	Name  string
}

type SendPasswordResetInput struct {
	Email    string
	Name     string
	ResetURL string
}

// Mailer is the outbound notification transport. Sends are best effort:
// callers log failures and carry on.
type Mailer interface {
	SendWelcome(ctx context.Context, input SendWelcomeInput) error
	SendPasswordReset(ctx context.Context, input SendPasswordResetInput) error
}
