package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/marcwilhelm/authhub/internal/auth"
	"github.com/marcwilhelm/authhub/internal/domain/user"
	"github.com/marcwilhelm/authhub/internal/mail"
	"github.com/marcwilhelm/authhub/internal/repo/postgres"
	"github.com/marcwilhelm/authhub/internal/security"
)

// UserStore is the slice of the credential store the auth service needs.
// Kept as an interface so tests can fake it.
type UserStore interface {
	Create(ctx context.Context, email, passwordHash, name, role string) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
	GetByEmail(ctx context.Context, email string) (user.User, error)
	GetByIDWithSecrets(ctx context.Context, id string) (user.User, error)
	GetByEmailWithSecrets(ctx context.Context, email string) (user.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	SetRefreshToken(ctx context.Context, id, tokenHash string) error
	ClearRefreshToken(ctx context.Context, id string) error
	SetPasswordReset(ctx context.Context, id, tokenHash string, expires time.Time) error
	ResetPassword(ctx context.Context, id, passwordHash string) error
}

// Session is what a successful register/login/change-password hands back.
type Session struct {
	User         user.Public `json:"user"`
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
}

type AuthService struct {
	store  UserStore
	tokens *auth.Manager
	mailer mail.Mailer
	log    *slog.Logger

	// Base URL for password-reset links in outbound mail.
	baseURL string
}

func NewAuthService(store UserStore, tokens *auth.Manager, mailer mail.Mailer, log *slog.Logger, baseURL string) *AuthService {
	return &AuthService{
		store:   store,
		tokens:  tokens,
		mailer:  mailer,
		log:     log,
		baseURL: baseURL,
	}
}

// Register creates the account, mints an access+refresh pair, and persists
// the refresh token. The welcome mail is best effort.
func (s *AuthService) Register(ctx context.Context, name, email, password, role string) (*Session, error) {
	if role == "" {
		role = user.RoleUser
	}
	if !user.ValidRole(role) {
		return nil, errInvalidRole
	}

	hash, err := security.HashPassword(password)

	if err != nil {
		return nil, err
	}

	u, err := s.store.Create(ctx, email, hash, name, role)

	if err != nil {
		if errors.Is(err, postgres.ErrEmailTaken) {
			return nil, errEmailTaken
		}
		return nil, err
	}

	session, err := s.openSession(ctx, u)

	if err != nil {
		return nil, err
	}

	if sendErr := s.mailer.SendWelcome(ctx, mail.SendWelcomeInput{Email: u.Email, Name: u.Name}); sendErr != nil {
		s.log.WarnContext(ctx, "welcome mail failed", "user_id", u.ID, "err", sendErr)
	}

	return session, nil
}

// Login verifies credentials and opens a fresh session, replacing any prior
// refresh token. Unknown email and wrong password produce the same error.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.store.GetByEmailWithSecrets(ctx, email)

	if err != nil {
		if errors.Is(err, postgres.ErrUserNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, err
	}

	if !u.IsActive {
		return nil, errAccountDisabled
	}

	if err := security.CheckPassword(u.PasswordHash, password); err != nil {
		return nil, errInvalidCredentials
	}

	return s.openSession(ctx, u)
}

// Refresh exchanges a live refresh token for a new access token. The refresh
// token itself is left in place; only the currently stored one is accepted,
// so a rotated or cleared token is dead immediately.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", errMissingToken
	}

	claims, err := s.tokens.Verify(auth.CategoryRefresh, refreshToken)

	if err != nil {
		return "", errInvalidToken
	}

	u, err := s.store.GetByIDWithSecrets(ctx, claims.UserID)

	if err != nil {
		if errors.Is(err, postgres.ErrUserNotFound) {
			return "", errUserNotFound
		}
		return "", err
	}

	if !u.IsActive {
		return "", errAccountDisabled
	}

	if u.RefreshTokenHash == "" || u.RefreshTokenHash != s.tokens.HashToken(auth.CategoryRefresh, refreshToken) {
		return "", errInvalidToken
	}

	accessToken, _, err := s.tokens.Sign(auth.CategoryAccess, u.ID, u.Email, u.Role)

	if err != nil {
		return "", err
	}

	return accessToken, nil
}

// Logout clears the stored refresh token. Idempotent: a user with no live
// session logs out without error.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	return s.store.ClearRefreshToken(ctx, userID)
}

// RequestPasswordReset mints and persists a reset token for the address, and
// dispatches the reset mail best effort. An unknown email yields no token and
// no error, so the HTTP layer always reports success.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	u, err := s.store.GetByEmail(ctx, email)

	if err != nil {
		if errors.Is(err, postgres.ErrUserNotFound) {
			return "", nil
		}
		return "", err
	}

	token, expiresAt, err := s.tokens.Sign(auth.CategoryReset, u.ID, u.Email, "")

	if err != nil {
		return "", err
	}

	err = s.store.SetPasswordReset(ctx, u.ID, s.tokens.HashToken(auth.CategoryReset, token), expiresAt)

	if err != nil {
		return "", err
	}

	input := mail.SendPasswordResetInput{
		Email:    u.Email,
		Name:     u.Name,
		ResetURL: s.baseURL + "/reset-password?token=" + token,
	}

	if sendErr := s.mailer.SendPasswordReset(ctx, input); sendErr != nil {
		s.log.WarnContext(ctx, "password reset mail failed", "user_id", u.ID, "err", sendErr)
	}

	return token, nil
}

// CompletePasswordReset consumes a reset token: replaces the hash, clears
// both reset fields, and clears the refresh token so every session has to
// re-authenticate.
func (s *AuthService) CompletePasswordReset(ctx context.Context, token, newPassword string) error {
	claims, err := s.tokens.Verify(auth.CategoryReset, token)

	if err != nil {
		return errInvalidToken
	}

	u, err := s.store.GetByIDWithSecrets(ctx, claims.UserID)

	if err != nil {
		if errors.Is(err, postgres.ErrUserNotFound) {
			return errInvalidToken
		}
		return err
	}

	if u.ResetTokenHash == "" || u.ResetTokenHash != s.tokens.HashToken(auth.CategoryReset, token) {
		return errInvalidToken
	}

	if u.ResetExpires == nil || u.ResetExpires.Before(time.Now().UTC()) {
		return errTokenExpired
	}

	hash, err := security.HashPassword(newPassword)

	if err != nil {
		return err
	}

	return s.store.ResetPassword(ctx, u.ID, hash)
}

// ChangePassword verifies the current password, swaps the hash, and rotates
// the session so tokens minted against the old password die.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) (*Session, error) {
	u, err := s.store.GetByIDWithSecrets(ctx, userID)

	if err != nil {
		if errors.Is(err, postgres.ErrUserNotFound) {
			return nil, errUserNotFound
		}
		return nil, err
	}

	if err := security.CheckPassword(u.PasswordHash, currentPassword); err != nil {
		return nil, newError(KindInvalidCredentials, "Current password is incorrect")
	}

	hash, err := security.HashPassword(newPassword)

	if err != nil {
		return nil, err
	}

	if err := s.store.UpdatePassword(ctx, u.ID, hash); err != nil {
		return nil, err
	}

	return s.openSession(ctx, u)
}

// openSession mints the access+refresh pair and stores the refresh token's
// hash on the user, displacing whatever session was live before.
func (s *AuthService) openSession(ctx context.Context, u user.User) (*Session, error) {
	accessToken, _, err := s.tokens.Sign(auth.CategoryAccess, u.ID, u.Email, u.Role)

	if err != nil {
		return nil, err
	}

	refreshToken, _, err := s.tokens.Sign(auth.CategoryRefresh, u.ID, u.Email, u.Role)

	if err != nil {
		return nil, err
	}

	err = s.store.SetRefreshToken(ctx, u.ID, s.tokens.HashToken(auth.CategoryRefresh, refreshToken))

	if err != nil {
		return nil, err
	}

	return &Session{
		User:         u.Public(),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}
