package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/marcwilhelm/authhub/internal/config"
	"github.com/marcwilhelm/authhub/internal/http/middlewares"
	"github.com/marcwilhelm/authhub/internal/service"
)

// Authenticator is the slice of the auth service these handlers consume.
type Authenticator interface {
	Register(ctx context.Context, name, email, password, role string) (*service.Session, error)
	Login(ctx context.Context, email, password string) (*service.Session, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	Logout(ctx context.Context, userID string) error
	RequestPasswordReset(ctx context.Context, email string) (string, error)
	CompletePasswordReset(ctx context.Context, token, newPassword string) error
}

type AuthHandler struct {
	svc Authenticator
}

func NewAuthHandler(svc Authenticator) *AuthHandler {
	return &AuthHandler{svc: svc}
}

type RegisterRequest struct {
	Name     string `json:"name" binding:"required,min=2,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role" binding:"omitempty,oneof=user admin"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
}

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	session, err := h.svc.Register(cctx, req.Name, req.Email, req.Password, req.Role)

	if err != nil {
		var svcErr *service.Error

		if errors.As(err, &svcErr) {
			switch svcErr.Kind {
			case service.KindConflict:
				RespondBadRequest(ctx, svcErr.Message, []FieldError{{Field: "email", Message: "is already in use"}})
				return
			case service.KindInvalidRole:
				RespondBadRequest(ctx, svcErr.Message, []FieldError{{Field: "role", Message: "must be one of user, admin"}})
				return
			}
		}

		RespondInternal(ctx, "Could not create account")
		return
	}

	RespondCreated(ctx, "Account created", session)
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	session, err := h.svc.Login(cctx, req.Email, req.Password)

	if err != nil {
		var svcErr *service.Error

		if errors.As(err, &svcErr) {
			switch svcErr.Kind {
			case service.KindInvalidCredentials, service.KindAccountDisabled:
				RespondUnauthorized(ctx, svcErr.Message)
				return
			}
		}

		RespondInternal(ctx, "Could not log in")
		return
	}

	RespondOK(ctx, "Logged in", session)
}

func (h *AuthHandler) Refresh(ctx *gin.Context) {
	var req RefreshRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	accessToken, err := h.svc.Refresh(cctx, req.RefreshToken)

	if err != nil {
		var svcErr *service.Error

		if errors.As(err, &svcErr) {
			switch svcErr.Kind {
			case service.KindMissingToken:
				RespondBadRequest(ctx, svcErr.Message, nil)
				return
			case service.KindInvalidToken, service.KindNotFound, service.KindAccountDisabled:
				RespondUnauthorized(ctx, "Invalid or expired refresh token")
				return
			}
		}

		RespondInternal(ctx, "Could not refresh session")
		return
	}

	RespondOK(ctx, "Token refreshed", gin.H{"accessToken": accessToken})
}

func (h *AuthHandler) Logout(ctx *gin.Context) {
	u, ok := middlewares.UserFromContext(ctx)

	if !ok {
		RespondUnauthorized(ctx, "Missing identity context")
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	if err := h.svc.Logout(cctx, u.ID); err != nil {
		RespondInternal(ctx, "Could not log out")
		return
	}

	RespondOK(ctx, "Logged out", nil)
}

// ForgotPassword always reports success so callers cannot probe which
// addresses have accounts.
func (h *AuthHandler) ForgotPassword(ctx *gin.Context) {
	var req ForgotPasswordRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	_, err := h.svc.RequestPasswordReset(cctx, req.Email)

	if err != nil {
		RespondInternal(ctx, "Could not process request")
		return
	}

	RespondOK(ctx, "If that email exists, a reset link has been sent", nil)
}

func (h *AuthHandler) ResetPassword(ctx *gin.Context) {
	var req ResetPasswordRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	err := h.svc.CompletePasswordReset(cctx, req.Token, req.Password)

	if err != nil {
		var svcErr *service.Error

		if errors.As(err, &svcErr) {
			switch svcErr.Kind {
			case service.KindInvalidToken, service.KindTokenExpired:
				RespondBadRequest(ctx, svcErr.Message, nil)
				return
			}
		}

		RespondInternal(ctx, "Could not reset password")
		return
	}

	RespondOK(ctx, "Password has been reset, log in with your new password", nil)
}
