package handlers_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/marcwilhelm/authhub/internal/domain/user"
	"github.com/marcwilhelm/authhub/internal/http/handlers"
	"github.com/marcwilhelm/authhub/internal/service"
)

type fakeUserService struct {
	getUserFn        func(ctx context.Context, id string) (user.Public, error)
	updateProfileFn  func(ctx context.Context, id string, name, email *string) (user.Public, error)
	listUsersFn      func(ctx context.Context) ([]user.Public, error)
	deleteUserFn     func(ctx context.Context, actorID, targetID string) error
	changePasswordFn func(ctx context.Context, userID, currentPassword, newPassword string) (*service.Session, error)
}

func (f *fakeUserService) GetUser(ctx context.Context, id string) (user.Public, error) {
	if f.getUserFn != nil {
		return f.getUserFn(ctx, id)
	}
	return user.Public{ID: id}, nil
}

func (f *fakeUserService) UpdateProfile(ctx context.Context, id string, name, email *string) (user.Public, error) {
	if f.updateProfileFn != nil {
		return f.updateProfileFn(ctx, id, name, email)
	}
	return user.Public{ID: id}, nil
}

func (f *fakeUserService) ListUsers(ctx context.Context) ([]user.Public, error) {
	if f.listUsersFn != nil {
		return f.listUsersFn(ctx)
	}
	return nil, nil
}

func (f *fakeUserService) DeleteUser(ctx context.Context, actorID, targetID string) error {
	if f.deleteUserFn != nil {
		return f.deleteUserFn(ctx, actorID, targetID)
	}
	return nil
}

func (f *fakeUserService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) (*service.Session, error) {
	if f.changePasswordFn != nil {
		return f.changePasswordFn(ctx, userID, currentPassword, newPassword)
	}
	return &service.Session{}, nil
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	return w
}

func TestGetProfile(t *testing.T) {
	h := handlers.NewUsersHandler(&fakeUserService{}, &fakeUserService{})

	t.Run("with identity", func(t *testing.T) {
		r := gin.New()
		r.GET("/users/profile", bindUser(user.User{ID: "id-1", Email: "a@x.com", Name: "Ada", Role: user.RoleUser, IsActive: true}), h.GetProfile)

		w := do(r, http.MethodGet, "/users/profile", "")

		if w.Code != http.StatusOK {
			t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
		}

		if body := w.Body.String(); bytes.Contains([]byte(body), []byte("passwordHash")) {
			t.Fatalf("profile leaked sensitive fields: %s", body)
		}
	})

	t.Run("without identity", func(t *testing.T) {
		r := gin.New()
		r.GET("/users/profile", h.GetProfile)

		w := do(r, http.MethodGet, "/users/profile", "")

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("got status %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})
}

func TestUpdateProfile(t *testing.T) {
	actor := user.User{ID: "id-1", Email: "a@x.com", Name: "Ada", Role: user.RoleUser, IsActive: true}

	tests := []struct {
		name           string
		body           string
		svcSetUp       func(*fakeUserService)
		wantStatusCode int
	}{
		{
			name: "update name only",
			body: `{"name":"Grace"}`,
			svcSetUp: func(f *fakeUserService) {
				f.updateProfileFn = func(ctx context.Context, id string, name, email *string) (user.Public, error) {
					if name == nil || *name != "Grace" {
						t.Errorf("expected name pointer Grace, got %v", name)
					}
					if email != nil {
						t.Errorf("expected nil email pointer, got %v", *email)
					}
					return user.Public{ID: id, Name: "Grace"}, nil
				}
			},
			wantStatusCode: http.StatusOK,
		},
		{
			name:           "invalid email",
			body:           `{"email":"not-an-email"}`,
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name: "email taken",
			body: `{"email":"taken@x.com"}`,
			svcSetUp: func(f *fakeUserService) {
				f.updateProfileFn = func(ctx context.Context, id string, name, email *string) (user.Public, error) {
					return user.Public{}, svcError(service.KindConflict, "Email is already in use")
				}
			},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name: "user vanished",
			body: `{"name":"Grace"}`,
			svcSetUp: func(f *fakeUserService) {
				f.updateProfileFn = func(ctx context.Context, id string, name, email *string) (user.Public, error) {
					return user.Public{}, svcError(service.KindNotFound, "User not found")
				}
			},
			wantStatusCode: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeUserService{}

			if tt.svcSetUp != nil {
				tt.svcSetUp(fake)
			}

			h := handlers.NewUsersHandler(fake, fake)

			r := gin.New()
			r.PUT("/users/profile", bindUser(actor), h.UpdateProfile)

			w := do(r, http.MethodPut, "/users/profile", tt.body)

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}
		})
	}
}

func TestChangePassword(t *testing.T) {
	actor := user.User{ID: "id-1", Email: "a@x.com", Role: user.RoleUser, IsActive: true}

	tests := []struct {
		name           string
		body           string
		svcSetUp       func(*fakeUserService)
		wantStatusCode int
	}{
		{
			name: "success",
			body: `{"currentPassword":"old-secret1","newPassword":"new-secret1"}`,
			svcSetUp: func(f *fakeUserService) {
				f.changePasswordFn = func(ctx context.Context, userID, currentPassword, newPassword string) (*service.Session, error) {
					return &service.Session{AccessToken: "access", RefreshToken: "refresh"}, nil
				}
			},
			wantStatusCode: http.StatusOK,
		},
		{
			name:           "new password too short",
			body:           `{"currentPassword":"old-secret1","newPassword":"short"}`,
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name: "wrong current password",
			body: `{"currentPassword":"wrong","newPassword":"new-secret1"}`,
			svcSetUp: func(f *fakeUserService) {
				f.changePasswordFn = func(ctx context.Context, userID, currentPassword, newPassword string) (*service.Session, error) {
					return nil, svcError(service.KindInvalidCredentials, "Current password is incorrect")
				}
			},
			wantStatusCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeUserService{}

			if tt.svcSetUp != nil {
				tt.svcSetUp(fake)
			}

			h := handlers.NewUsersHandler(fake, fake)

			r := gin.New()
			r.PUT("/users/change-password", bindUser(actor), h.ChangePassword)

			w := do(r, http.MethodPut, "/users/change-password", tt.body)

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}
		})
	}
}

func TestGetUserByID(t *testing.T) {
	fake := &fakeUserService{
		getUserFn: func(ctx context.Context, id string) (user.Public, error) {
			if id == "missing" {
				return user.Public{}, svcError(service.KindNotFound, "User not found")
			}
			return user.Public{ID: id, Email: "a@x.com"}, nil
		},
	}

	h := handlers.NewUsersHandler(fake, fake)

	r := gin.New()
	r.GET("/users/:id", h.GetUser)

	if w := do(r, http.MethodGet, "/users/id-1", ""); w.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusOK)
	}

	if w := do(r, http.MethodGet, "/users/missing", ""); w.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestDeleteUser(t *testing.T) {
	admin := user.User{ID: "admin-1", Role: user.RoleAdmin, IsActive: true}

	tests := []struct {
		name           string
		targetID       string
		svcSetUp       func(*fakeUserService)
		wantStatusCode int
	}{
		{
			name:           "success",
			targetID:       "id-2",
			wantStatusCode: http.StatusOK,
		},
		{
			name:     "self deletion",
			targetID: "admin-1",
			svcSetUp: func(f *fakeUserService) {
				f.deleteUserFn = func(ctx context.Context, actorID, targetID string) error {
					return svcError(service.KindSelfDeletion, "You cannot delete your own account")
				}
			},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:     "unknown user",
			targetID: "missing",
			svcSetUp: func(f *fakeUserService) {
				f.deleteUserFn = func(ctx context.Context, actorID, targetID string) error {
					return svcError(service.KindNotFound, "User not found")
				}
			},
			wantStatusCode: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeUserService{}

			if tt.svcSetUp != nil {
				tt.svcSetUp(fake)
			}

			h := handlers.NewUsersHandler(fake, fake)

			r := gin.New()
			r.DELETE("/users/:id", bindUser(admin), h.DeleteUser)

			w := do(r, http.MethodDelete, "/users/"+tt.targetID, "")

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}
		})
	}
}

func TestListUsers(t *testing.T) {
	fake := &fakeUserService{
		listUsersFn: func(ctx context.Context) ([]user.Public, error) {
			return []user.Public{{ID: "id-1"}, {ID: "id-2"}}, nil
		},
	}

	h := handlers.NewUsersHandler(fake, fake)

	r := gin.New()
	r.GET("/users", h.ListUsers)

	w := do(r, http.MethodGet, "/users", "")

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusOK)
	}

	env := decodeEnvelope(t, w)
	if !env.Success {
		t.Fatalf("expected success envelope, body=%s", w.Body.String())
	}
}
