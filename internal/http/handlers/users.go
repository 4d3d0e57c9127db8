package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/marcwilhelm/authhub/internal/config"
	"github.com/marcwilhelm/authhub/internal/domain/user"
	"github.com/marcwilhelm/authhub/internal/http/middlewares"
	"github.com/marcwilhelm/authhub/internal/service"
)

type UserManager interface {
	GetUser(ctx context.Context, id string) (user.Public, error)
	UpdateProfile(ctx context.Context, id string, name, email *string) (user.Public, error)
	ListUsers(ctx context.Context) ([]user.Public, error)
	DeleteUser(ctx context.Context, actorID, targetID string) error
}

type PasswordChanger interface {
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) (*service.Session, error)
}

type UsersHandler struct {
	svc       UserManager
	passwords PasswordChanger
}

func NewUsersHandler(svc UserManager, passwords PasswordChanger) *UsersHandler {
	return &UsersHandler{svc: svc, passwords: passwords}
}

type UpdateProfileRequest struct {
	Name  *string `json:"name" binding:"omitempty,min=2,max=50"`
	Email *string `json:"email" binding:"omitempty,email"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,min=8"`
}

func (h *UsersHandler) GetProfile(ctx *gin.Context) {
	u, ok := middlewares.UserFromContext(ctx)

	if !ok {
		RespondUnauthorized(ctx, "Missing identity context")
		return
	}

	// the middleware already loaded the safe projection
	RespondOK(ctx, "Profile", u.Public())
}

func (h *UsersHandler) UpdateProfile(ctx *gin.Context) {
	u, ok := middlewares.UserFromContext(ctx)

	if !ok {
		RespondUnauthorized(ctx, "Missing identity context")
		return
	}

	var req UpdateProfileRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	updated, err := h.svc.UpdateProfile(cctx, u.ID, req.Name, req.Email)

	if err != nil {
		var svcErr *service.Error

		if errors.As(err, &svcErr) {
			switch svcErr.Kind {
			case service.KindNotFound:
				RespondNotFound(ctx, svcErr.Message)
				return
			case service.KindConflict:
				RespondBadRequest(ctx, svcErr.Message, []FieldError{{Field: "email", Message: "is already in use"}})
				return
			}
		}

		RespondInternal(ctx, "Could not update profile")
		return
	}

	RespondOK(ctx, "Profile updated", updated)
}

func (h *UsersHandler) ChangePassword(ctx *gin.Context) {
	u, ok := middlewares.UserFromContext(ctx)

	if !ok {
		RespondUnauthorized(ctx, "Missing identity context")
		return
	}

	var req ChangePasswordRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	session, err := h.passwords.ChangePassword(cctx, u.ID, req.CurrentPassword, req.NewPassword)

	if err != nil {
		var svcErr *service.Error

		if errors.As(err, &svcErr) {
			switch svcErr.Kind {
			case service.KindInvalidCredentials:
				RespondBadRequest(ctx, svcErr.Message, []FieldError{{Field: "currentPassword", Message: "is incorrect"}})
				return
			case service.KindNotFound:
				RespondNotFound(ctx, svcErr.Message)
				return
			}
		}

		RespondInternal(ctx, "Could not change password")
		return
	}

	RespondOK(ctx, "Password changed", session)
}

// Admin operations

func (h *UsersHandler) ListUsers(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	users, err := h.svc.ListUsers(cctx)

	if err != nil {
		RespondInternal(ctx, "Could not list users")
		return
	}

	RespondOK(ctx, "Users", users)
}

func (h *UsersHandler) GetUser(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	u, err := h.svc.GetUser(cctx, ctx.Param("id"))

	if err != nil {
		var svcErr *service.Error

		if errors.As(err, &svcErr) && svcErr.Kind == service.KindNotFound {
			RespondNotFound(ctx, svcErr.Message)
			return
		}

		RespondInternal(ctx, "Could not load user")
		return
	}

	RespondOK(ctx, "User", u)
}

func (h *UsersHandler) DeleteUser(ctx *gin.Context) {
	actor, ok := middlewares.UserFromContext(ctx)

	if !ok {
		RespondUnauthorized(ctx, "Missing identity context")
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	err := h.svc.DeleteUser(cctx, actor.ID, ctx.Param("id"))

	if err != nil {
		var svcErr *service.Error

		if errors.As(err, &svcErr) {
			switch svcErr.Kind {
			case service.KindSelfDeletion:
				RespondBadRequest(ctx, svcErr.Message, nil)
				return
			case service.KindNotFound:
				RespondNotFound(ctx, svcErr.Message)
				return
			}
		}

		RespondInternal(ctx, "Could not delete user")
		return
	}

	RespondOK(ctx, "User deleted", nil)
}
