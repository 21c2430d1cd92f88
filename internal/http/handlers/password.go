package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stagepass/stagepass/internal/config"
	"github.com/stagepass/stagepass/internal/domain/user"
	"github.com/stagepass/stagepass/internal/http/middlewares"
	"github.com/stagepass/stagepass/internal/repo/postgres"
	"github.com/stagepass/stagepass/internal/security"
)

type PasswordUsersStore interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
}

// TokenConsumer is the atomic consume-and-mutate pair backed by a single
// transaction per call.
type TokenConsumer interface {
	ResetPassword(ctx context.Context, tokenHash, newPasswordHash string) (string, error)
	VerifyEmail(ctx context.Context, tokenHash string) (string, error)
}

type PasswordHandler struct {
	users     PasswordUsersStore
	authStore TokenConsumer
	mailer    *Mailer
}

func NewPasswordHandler(users PasswordUsersStore, authStore TokenConsumer, mailer *Mailer) *PasswordHandler {
	return &PasswordHandler{
		users:     users,
		authStore: authStore,
		mailer:    mailer,
	}
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,min=8"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,min=8"`
}

type VerifyEmailRequest struct {
	Token string `json:"token" binding:"required"`
}

// ChangePassword requires the current password even though the caller is
// already authenticated: a stolen access token alone must not be enough
// to take over the account.
func (h *PasswordHandler) ChangePassword(ctx *gin.Context) {
	identity, ok := middlewares.IdentityFromContext(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "missing_token", "Missing identity context")
		return
	}

	var req ChangePasswordRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	u, err := h.users.GetByID(cctx, identity.ID)

	if err != nil {
		RespondInternal(ctx, "Could not change password")
		return
	}

	if err := security.CheckPassword(u.PasswordHash, req.CurrentPassword); err != nil {
		RespondBadRequestCode(ctx, "wrong_password", "Current password is incorrect.")
		return
	}

	hash, err := security.HashPassword(req.NewPassword)

	if err != nil {
		RespondInternal(ctx, "Could not change password")
		return
	}

	if err := h.users.UpdatePasswordHash(cctx, u.ID, hash); err != nil {
		RespondInternal(ctx, "Could not change password")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"changed": true,
	})
}

// ForgotPassword always answers the same way. Whether the account exists
// is decided, and acted on, entirely server side.
func (h *PasswordHandler) ForgotPassword(ctx *gin.Context) {
	var req ForgotPasswordRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	u, err := h.users.GetByEmail(cctx, req.Email)

	if err == nil {
		if err := h.mailer.EnqueuePasswordReset(cctx, u, requestIDFrom(ctx)); err != nil {
			slog.Default().ErrorContext(ctx.Request.Context(), "reset enqueue failed", "user_id", u.ID, "err", err)
		}
	} else if !errors.Is(err, user.ErrNotFound) {
		slog.Default().ErrorContext(ctx.Request.Context(), "forgot password lookup failed", "err", err)
	}

	ctx.JSON(http.StatusOK, gin.H{
		"message": "If that email is registered, a reset link is on its way.",
	})
}

func (h *PasswordHandler) ResetPassword(ctx *gin.Context) {
	var req ResetPasswordRequest

	if !BindJSON(ctx, &req) {
		return
	}

	hash, err := security.HashPassword(req.NewPassword)

	if err != nil {
		RespondInternal(ctx, "Could not reset password")
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	_, err = h.authStore.ResetPassword(cctx, security.HashActionToken(req.Token), hash)

	if err != nil {
		if errors.Is(err, postgres.ErrActionTokenNotFound) {
			RespondBadRequestCode(ctx, "invalid_or_expired_token", "Reset token is invalid or has expired.")
			return
		}

		RespondInternal(ctx, "Could not reset password")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"reset": true,
	})
}

func (h *PasswordHandler) VerifyEmail(ctx *gin.Context) {
	var req VerifyEmailRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	_, err := h.authStore.VerifyEmail(cctx, security.HashActionToken(req.Token))

	if err != nil {
		if errors.Is(err, postgres.ErrActionTokenNotFound) {
			RespondBadRequestCode(ctx, "invalid_or_expired_token", "Verification token is invalid or has expired.")
			return
		}

		RespondInternal(ctx, "Could not verify email")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"verified": true,
	})
}
