package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stagepass/stagepass/internal/auth"
	"github.com/stagepass/stagepass/internal/config"
	"github.com/stagepass/stagepass/internal/domain/user"
	"github.com/stagepass/stagepass/internal/http/middlewares"
	"github.com/stagepass/stagepass/internal/security"
)

type UsersStore interface {
	Create(ctx context.Context, req user.CreateRequest) (user.User, error)
	GetByEmail(ctx context.Context, email string) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
}

type TokenIssuer interface {
	GenerateAccessToken(userID, email string, role user.Role) (string, error)
	GenerateRefreshToken(userID string) (string, error)
	VerifyRefreshToken(token string) (*auth.RefreshClaims, error)
}

type AuthHandler struct {
	users  UsersStore
	jwt    TokenIssuer
	mailer *Mailer
}

func NewAuthHandler(users UsersStore, jwt TokenIssuer, mailer *Mailer) *AuthHandler {
	return &AuthHandler{
		users:  users,
		jwt:    jwt,
		mailer: mailer,
	}
}

type RegisterRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName" binding:"required"`
	Phone     string `json:"phone"`
	Role      string `json:"role" binding:"required,oneof=musician producer band_manager"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	hash, err := security.HashPassword(req.Password)

	if err != nil {
		RespondInternal(ctx, "Could not create account")
		return
	}

	// no pre-check on the email: the insert itself decides, so two
	// concurrent registrations can't both win
	u, err := h.users.Create(cctx, user.CreateRequest{
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Phone:        req.Phone,
		Role:         user.Role(req.Role),
	})

	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			RespondBadRequestCode(ctx, "email_taken", "Email is already in use.")
			return
		}

		RespondInternal(ctx, "Could not create account")
		return
	}

	// account creation already succeeded; a failed enqueue only delays
	// the verification email
	if err := h.mailer.EnqueueEmailVerification(cctx, u, requestIDFrom(ctx)); err != nil {
		slog.Default().ErrorContext(ctx.Request.Context(), "verification enqueue failed", "user_id", u.ID, "err", err)
	}

	accessToken, refreshToken, ok := h.issueTokenPair(ctx, u)

	if !ok {
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"user":         u,
		"accessToken":  accessToken,
		"refreshToken": refreshToken,
	})
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	foundUser, err := h.users.GetByEmail(cctx, req.Email)
	if err != nil {
		// unknown email gets the same answer as a wrong password: no
		// account probing. Anything else is a store failure, not a
		// credential failure.
		if errors.Is(err, user.ErrNotFound) {
			RespondUnAuthorized(ctx, "invalid_credentials", "Email or password is incorrect.")
			return
		}

		RespondInternal(ctx, "Could not log in")
		return
	}

	err = security.CheckPassword(foundUser.PasswordHash, req.Password)

	if err != nil {
		RespondUnAuthorized(ctx, "invalid_credentials", "Email or password is incorrect.")
		return
	}

	accessToken, refreshToken, ok := h.issueTokenPair(ctx, foundUser)

	if !ok {
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"user":         foundUser,
		"accessToken":  accessToken,
		"refreshToken": refreshToken,
	})
}

func (h *AuthHandler) Me(ctx *gin.Context) {
	identity, ok := middlewares.IdentityFromContext(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "missing_token", "Missing identity context")
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	u, err := h.users.GetByID(cctx, identity.ID)

	if err != nil {
		RespondInternal(ctx, "Could not load profile")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"user": u})
}

// Refresh exchanges a refresh token for a new access token. No rotation:
// the refresh token stays valid until it expires, and the embedded role
// comes from the store, not from any claim.
func (h *AuthHandler) Refresh(ctx *gin.Context) {
	var req RefreshRequest

	if !BindJSON(ctx, &req) {
		return
	}

	claims, err := h.jwt.VerifyRefreshToken(req.RefreshToken)

	if err != nil {
		RespondUnAuthorized(ctx, "invalid_refresh", "Invalid or expired refresh token")
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	u, err := h.users.GetByID(cctx, claims.UserID)

	if err != nil {
		// a deleted subject is a dead token; a store failure is not
		if errors.Is(err, user.ErrNotFound) {
			RespondUnAuthorized(ctx, "invalid_refresh", "Invalid or expired refresh token")
			return
		}

		RespondInternal(ctx, "Could not refresh token")
		return
	}

	accessToken, err := h.jwt.GenerateAccessToken(u.ID, u.Email, u.Role)

	if err != nil {
		RespondInternal(ctx, "Could not generate access token")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"accessToken": accessToken,
	})
}

// Logout is an acknowledgment only. Tokens are stateless, so the client
// discards them; nothing is revoked server side.
func (h *AuthHandler) Logout(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"loggedOut": true,
	})
}

func (h *AuthHandler) issueTokenPair(ctx *gin.Context, u user.User) (string, string, bool) {
	accessToken, err := h.jwt.GenerateAccessToken(u.ID, u.Email, u.Role)

	if err != nil {
		RespondInternal(ctx, "Could not generate access token")
		return "", "", false
	}

	refreshToken, err := h.jwt.GenerateRefreshToken(u.ID)

	if err != nil {
		RespondInternal(ctx, "Could not generate refresh token")
		return "", "", false
	}

	return accessToken, refreshToken, true
}
