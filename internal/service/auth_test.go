package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/marcwilhelm/authhub/internal/auth"
	"github.com/marcwilhelm/authhub/internal/domain/user"
	"github.com/marcwilhelm/authhub/internal/mail"
	"github.com/marcwilhelm/authhub/internal/repo/postgres"
	"github.com/marcwilhelm/authhub/internal/service"
)

// fakeStore is an in-memory stand-in for the postgres users repo. It returns
// the same sentinel errors the real repo does.
type fakeStore struct {
	users map[string]*user.User
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: map[string]*user.User{}}
}

func (f *fakeStore) Create(_ context.Context, email, passwordHash, name, role string) (user.User, error) {
	email = user.CanonicalEmail(email)

	for _, u := range f.users {
		if u.Email == email {
			return user.User{}, postgres.ErrEmailTaken
		}
	}

	now := time.Now().UTC()

	u := &user.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		Role:         role,
		IsActive:     true,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	f.users[u.ID] = u

	return *u, nil
}

func (f *fakeStore) GetByID(_ context.Context, id string) (user.User, error) {
	u, ok := f.users[id]
	if !ok {
		return user.User{}, postgres.ErrUserNotFound
	}

	safe := *u
	safe.PasswordHash = ""
	safe.RefreshTokenHash = ""
	safe.ResetTokenHash = ""
	safe.ResetExpires = nil
	return safe, nil
}

func (f *fakeStore) GetByEmail(ctx context.Context, email string) (user.User, error) {
	u, err := f.GetByEmailWithSecrets(ctx, email)
	if err != nil {
		return user.User{}, err
	}

	u.PasswordHash = ""
	u.RefreshTokenHash = ""
	u.ResetTokenHash = ""
	u.ResetExpires = nil
	return u, nil
}

func (f *fakeStore) GetByIDWithSecrets(_ context.Context, id string) (user.User, error) {
	u, ok := f.users[id]
	if !ok {
		return user.User{}, postgres.ErrUserNotFound
	}
	return *u, nil
}

func (f *fakeStore) GetByEmailWithSecrets(_ context.Context, email string) (user.User, error) {
	email = user.CanonicalEmail(email)

	for _, u := range f.users {
		if u.Email == email {
			return *u, nil
		}
	}
	return user.User{}, postgres.ErrUserNotFound
}

func (f *fakeStore) UpdatePassword(_ context.Context, id, passwordHash string) error {
	if u, ok := f.users[id]; ok {
		u.PasswordHash = passwordHash
	}
	return nil
}

func (f *fakeStore) SetRefreshToken(_ context.Context, id, tokenHash string) error {
	if u, ok := f.users[id]; ok {
		u.RefreshTokenHash = tokenHash
	}
	return nil
}

func (f *fakeStore) ClearRefreshToken(_ context.Context, id string) error {
	if u, ok := f.users[id]; ok {
		u.RefreshTokenHash = ""
	}
	return nil
}

func (f *fakeStore) SetPasswordReset(_ context.Context, id, tokenHash string, expires time.Time) error {
	if u, ok := f.users[id]; ok {
		u.ResetTokenHash = tokenHash
		u.ResetExpires = &expires
	}
	return nil
}

func (f *fakeStore) ResetPassword(_ context.Context, id, passwordHash string) error {
	if u, ok := f.users[id]; ok {
		u.PasswordHash = passwordHash
		u.ResetTokenHash = ""
		u.ResetExpires = nil
		u.RefreshTokenHash = ""
	}
	return nil
}

type fakeMailer struct {
	welcomes int
	resets   int
	fail     bool
}

func (m *fakeMailer) SendWelcome(context.Context, mail.SendWelcomeInput) error {
	m.welcomes++
	if m.fail {
		return errors.New("smtp down")
	}
	return nil
}

func (m *fakeMailer) SendPasswordReset(context.Context, mail.SendPasswordResetInput) error {
	m.resets++
	if m.fail {
		return errors.New("smtp down")
	}
	return nil
}

func newTestService(store *fakeStore, mailer *fakeMailer) (*service.AuthService, *auth.Manager) {
	tokens := auth.NewManager(
		"access-secret", "refresh-secret", "reset-secret",
		15*time.Minute, 7*24*time.Hour, time.Hour,
	)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	return service.NewAuthService(store, tokens, mailer, log, "http://localhost:8080"), tokens
}

func kindOf(t *testing.T, err error) service.Kind {
	t.Helper()

	var svcErr *service.Error
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected a service error, got %v", err)
	}
	return svcErr.Kind
}

func TestRegister(t *testing.T) {
	store := newFakeStore()
	mailer := &fakeMailer{}
	svc, tokens := newTestService(store, mailer)

	session, err := svc.Register(context.Background(), "A", "a@x.com", "secret1!", "")

	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if session.User.Role != user.RoleUser {
		t.Fatalf("default role should be user, got %q", session.User.Role)
	}
	if session.AccessToken == "" || session.RefreshToken == "" {
		t.Fatalf("expected a token pair, got %+v", session)
	}

	// refresh token hash must be persisted
	stored := store.users[session.User.ID]
	if stored.RefreshTokenHash != tokens.HashToken(auth.CategoryRefresh, session.RefreshToken) {
		t.Fatalf("stored refresh hash does not match the issued token")
	}

	if mailer.welcomes != 1 {
		t.Fatalf("expected one welcome mail, got %d", mailer.welcomes)
	}
}

func TestRegisterDuplicateEmailCaseInsensitive(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(store, &fakeMailer{})

	if _, err := svc.Register(context.Background(), "A", "a@x.com", "secret1!", ""); err != nil {
		t.Fatalf("first register failed: %v", err)
	}

	_, err := svc.Register(context.Background(), "B", "A@X.com", "secret2!", "")

	if kindOf(t, err) != service.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRegisterRejectsUnknownRole(t *testing.T) {
	svc, _ := newTestService(newFakeStore(), &fakeMailer{})

	_, err := svc.Register(context.Background(), "A", "a@x.com", "secret1!", "superadmin")

	if kindOf(t, err) != service.KindInvalidRole {
		t.Fatalf("expected invalid role, got %v", err)
	}
}

func TestRegisterSurvivesMailerFailure(t *testing.T) {
	svc, _ := newTestService(newFakeStore(), &fakeMailer{fail: true})

	if _, err := svc.Register(context.Background(), "A", "a@x.com", "secret1!", ""); err != nil {
		t.Fatalf("mailer failure must not fail registration: %v", err)
	}
}

func TestLogin(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(store, &fakeMailer{})

	reg, err := svc.Register(context.Background(), "A", "a@x.com", "secret1!", "")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	session, err := svc.Login(context.Background(), "a@x.com", "secret1!")

	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if session.RefreshToken == reg.RefreshToken {
		t.Fatalf("login must mint a fresh refresh token")
	}

	// a login displaces the previous session
	if _, err := svc.Refresh(context.Background(), reg.RefreshToken); err == nil {
		t.Fatalf("stale refresh token should be rejected after a new login")
	}
}

func TestLoginFailuresShareOneMessage(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(store, &fakeMailer{})

	if _, err := svc.Register(context.Background(), "A", "a@x.com", "secret1!", ""); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	_, errUnknown := svc.Login(context.Background(), "missing@x.com", "secret1!")
	_, errWrongPw := svc.Login(context.Background(), "a@x.com", "wrong-password")

	if kindOf(t, errUnknown) != service.KindInvalidCredentials || kindOf(t, errWrongPw) != service.KindInvalidCredentials {
		t.Fatalf("both failures should be invalid credentials: %v, %v", errUnknown, errWrongPw)
	}

	if errUnknown.Error() != errWrongPw.Error() {
		t.Fatalf("unknown email and wrong password must not be distinguishable: %q vs %q",
			errUnknown.Error(), errWrongPw.Error())
	}
}

func TestLoginDisabledAccount(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(store, &fakeMailer{})

	reg, err := svc.Register(context.Background(), "A", "a@x.com", "secret1!", "")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	store.users[reg.User.ID].IsActive = false

	_, err = svc.Login(context.Background(), "a@x.com", "secret1!")

	if kindOf(t, err) != service.KindAccountDisabled {
		t.Fatalf("expected account disabled, got %v", err)
	}
}

func TestRefresh(t *testing.T) {
	store := newFakeStore()
	svc, tokens := newTestService(store, &fakeMailer{})

	reg, err := svc.Register(context.Background(), "A", "a@x.com", "secret1!", "")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	accessToken, err := svc.Refresh(context.Background(), reg.RefreshToken)

	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	claims, err := tokens.Verify(auth.CategoryAccess, accessToken)
	if err != nil {
		t.Fatalf("minted access token should verify: %v", err)
	}
	if claims.UserID != reg.User.ID {
		t.Fatalf("access token bound to wrong user: %q", claims.UserID)
	}

	// the refresh token itself is unchanged; it keeps working
	if _, err := svc.Refresh(context.Background(), reg.RefreshToken); err != nil {
		t.Fatalf("refresh token should remain valid: %v", err)
	}
}

func TestRefreshRejections(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(store, &fakeMailer{})

	reg, err := svc.Register(context.Background(), "A", "a@x.com", "secret1!", "")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	tests := []struct {
		name     string
		setup    func()
		token    string
		wantKind service.Kind
	}{
		{
			name:     "missing token",
			token:    "",
			wantKind: service.KindMissingToken,
		},
		{
			name:     "garbage token",
			token:    "not.a.jwt",
			wantKind: service.KindInvalidToken,
		},
		{
			name: "cleared by logout",
			setup: func() {
				if err := svc.Logout(context.Background(), reg.User.ID); err != nil {
					t.Fatalf("logout failed: %v", err)
				}
			},
			token:    reg.RefreshToken,
			wantKind: service.KindInvalidToken,
		},
		{
			name: "disabled account",
			setup: func() {
				// restore the session, then disable the account
				if _, err := svc.Login(context.Background(), "a@x.com", "secret1!"); err != nil {
					t.Fatalf("login failed: %v", err)
				}
				store.users[reg.User.ID].IsActive = false
			},
			token:    reg.RefreshToken,
			wantKind: service.KindAccountDisabled,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup()
			}

			_, err := svc.Refresh(context.Background(), tt.token)

			if kindOf(t, err) != tt.wantKind {
				t.Fatalf("got %v, want kind %d", err, tt.wantKind)
			}
		})
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(store, &fakeMailer{})

	reg, err := svc.Register(context.Background(), "A", "a@x.com", "secret1!", "")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := svc.Logout(context.Background(), reg.User.ID); err != nil {
			t.Fatalf("logout %d failed: %v", i, err)
		}
	}
}

func TestRequestPasswordReset(t *testing.T) {
	store := newFakeStore()
	mailer := &fakeMailer{}
	svc, tokens := newTestService(store, mailer)

	reg, err := svc.Register(context.Background(), "A", "a@x.com", "secret1!", "")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	token, err := svc.RequestPasswordReset(context.Background(), "a@x.com")

	if err != nil {
		t.Fatalf("request reset failed: %v", err)
	}
	if token == "" {
		t.Fatalf("expected a reset token")
	}

	if _, err := tokens.Verify(auth.CategoryReset, token); err != nil {
		t.Fatalf("reset token should verify as reset category: %v", err)
	}

	stored := store.users[reg.User.ID]
	if stored.ResetTokenHash == "" || stored.ResetExpires == nil {
		t.Fatalf("reset fields should be persisted together: %+v", stored)
	}

	if mailer.resets != 1 {
		t.Fatalf("expected one reset mail, got %d", mailer.resets)
	}
}

func TestRequestPasswordResetUnknownEmail(t *testing.T) {
	svc, _ := newTestService(newFakeStore(), &fakeMailer{})

	token, err := svc.RequestPasswordReset(context.Background(), "nobody@x.com")

	if err != nil {
		t.Fatalf("unknown email must not error: %v", err)
	}
	if token != "" {
		t.Fatalf("unknown email must not produce a token")
	}
}

func TestCompletePasswordReset(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(store, &fakeMailer{})

	reg, err := svc.Register(context.Background(), "A", "a@x.com", "secret1!", "")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	token, err := svc.RequestPasswordReset(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("request reset failed: %v", err)
	}

	if err := svc.CompletePasswordReset(context.Background(), token, "brand-new-pw1"); err != nil {
		t.Fatalf("complete reset failed: %v", err)
	}

	stored := store.users[reg.User.ID]
	if stored.ResetTokenHash != "" || stored.ResetExpires != nil {
		t.Fatalf("reset fields should be cleared together: %+v", stored)
	}

	// the pre-reset session is dead
	if _, err := svc.Refresh(context.Background(), reg.RefreshToken); err == nil {
		t.Fatalf("pre-reset refresh token should be rejected")
	}

	// the old password no longer works, the new one does
	if _, err := svc.Login(context.Background(), "a@x.com", "secret1!"); err == nil {
		t.Fatalf("old password should be rejected")
	}
	if _, err := svc.Login(context.Background(), "a@x.com", "brand-new-pw1"); err != nil {
		t.Fatalf("new password should work: %v", err)
	}
}

func TestCompletePasswordResetExpired(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(store, &fakeMailer{})

	reg, err := svc.Register(context.Background(), "A", "a@x.com", "secret1!", "")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	token, err := svc.RequestPasswordReset(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("request reset failed: %v", err)
	}

	past := time.Now().UTC().Add(-time.Minute)
	store.users[reg.User.ID].ResetExpires = &past

	err = svc.CompletePasswordReset(context.Background(), token, "brand-new-pw1")

	if kindOf(t, err) != service.KindTokenExpired {
		t.Fatalf("expected token expired, got %v", err)
	}
}

func TestCompletePasswordResetTampered(t *testing.T) {
	store := newFakeStore()
	svc, tokens := newTestService(store, &fakeMailer{})

	reg, err := svc.Register(context.Background(), "A", "a@x.com", "secret1!", "")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if _, err := svc.RequestPasswordReset(context.Background(), "a@x.com"); err != nil {
		t.Fatalf("request reset failed: %v", err)
	}

	// a fresh token of the right category that is not the stored one
	other, _, err := tokens.Sign(auth.CategoryReset, reg.User.ID, reg.User.Email, "")
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	err = svc.CompletePasswordReset(context.Background(), other, "brand-new-pw1")

	if kindOf(t, err) != service.KindInvalidToken {
		t.Fatalf("expected invalid token, got %v", err)
	}

	if err := svc.CompletePasswordReset(context.Background(), "garbage", "brand-new-pw1"); kindOf(t, err) != service.KindInvalidToken {
		t.Fatalf("expected invalid token for garbage, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(store, &fakeMailer{})

	reg, err := svc.Register(context.Background(), "A", "a@x.com", "secret1!", "")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	_, err = svc.ChangePassword(context.Background(), reg.User.ID, "wrong-password", "brand-new-pw1")

	if kindOf(t, err) != service.KindInvalidCredentials {
		t.Fatalf("expected invalid credentials, got %v", err)
	}

	session, err := svc.ChangePassword(context.Background(), reg.User.ID, "secret1!", "brand-new-pw1")

	if err != nil {
		t.Fatalf("change password failed: %v", err)
	}

	if session.RefreshToken == reg.RefreshToken {
		t.Fatalf("change password should rotate the session")
	}

	if _, err := svc.Refresh(context.Background(), reg.RefreshToken); err == nil {
		t.Fatalf("old refresh token should be rejected after password change")
	}

	if _, err := svc.Login(context.Background(), "a@x.com", "brand-new-pw1"); err != nil {
		t.Fatalf("new password should work: %v", err)
	}
}
