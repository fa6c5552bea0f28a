package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/geocoder89/authhub/internal/auth"
	"github.com/geocoder89/authhub/internal/config"
	"github.com/geocoder89/authhub/internal/domain/user"
	"github.com/geocoder89/authhub/internal/http/apierr"
	"github.com/geocoder89/authhub/internal/http/middlewares"
	"github.com/geocoder89/authhub/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type UserStore interface {
	FindByEmail(ctx context.Context, email string) (user.User, error)
	Create(ctx context.Context, nu user.NewUser) (user.User, error)
	UpdateProfile(ctx context.Context, id string, upd user.ProfileUpdate) (user.User, error)
	DeleteAll(ctx context.Context) (int64, error)
}

type PasswordHasher interface {
	HashPassword(plain string) (string, error)
	CheckPassword(hash, plain string) error
}

type TokenIssuer interface {
	Issue(userID string) (string, time.Time, error)
}

type AuthHandler struct {
	users  UserStore
	hasher PasswordHasher
	tokens TokenIssuer
	cfg    config.Config
	prom   *observability.Prom
	log    *slog.Logger

	// compared against on unknown emails so both login failures cost a bcrypt check
	dummyOnce sync.Once
	dummyHash string
}

func NewAuthHandler(users UserStore, hasher PasswordHasher, tokens TokenIssuer, cfg config.Config, prom *observability.Prom, log *slog.Logger) *AuthHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AuthHandler{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		cfg:    cfg,
		prom:   prom,
		log:    log,
	}
}

type AuthResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Token   string      `json:"token"`
	User    user.Public `json:"user"`
}

type UserResponse struct {
	Status string `json:"status"`
	Data   struct {
		User user.Public `json:"user"`
	} `json:"data"`
}

const invalidCredentialsMsg = "Incorrect email or password"

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req user.RegisterRequest

	if !BindJSON(ctx, &req) {
		h.prom.AuthEvent("register", "invalid")
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	email := h.normalizeEmail(req.Email)

	// Check if user already exists
	_, err := h.users.FindByEmail(cctx, email)
	switch {
	case err == nil:
		h.prom.AuthEvent("register", "duplicate")
		RespondDuplicate(ctx, "Email already in use")
		return
	case !errors.Is(err, user.ErrNotFound):
		h.log.ErrorContext(ctx.Request.Context(), "register lookup failed", "err", err)
		RespondInternal(ctx, "Could not create user")
		return
	}

	hash, err := h.hasher.HashPassword(req.Password)

	if err != nil {
		h.log.WarnContext(ctx.Request.Context(), "password hash failed", "err", err)
		RespondValidation(ctx, "Could not process password", nil)
		return
	}

	u, err := h.users.Create(cctx, user.NewUser{
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Email:        email,
		PasswordHash: hash,
		Role:         user.RoleUser,
	})

	if err != nil {
		// a concurrent registration can still lose the unique index race
		if errors.Is(err, user.ErrEmailTaken) {
			h.prom.AuthEvent("register", "duplicate")
			RespondDuplicate(ctx, "Email already in use")
			return
		}

		h.log.ErrorContext(ctx.Request.Context(), "create user failed", "err", err)
		RespondInternal(ctx, "Could not create user")
		return
	}

	token, ok := h.issueSession(ctx, u.ID)
	if !ok {
		return
	}

	h.prom.AuthEvent("register", "ok")
	h.log.InfoContext(ctx.Request.Context(), "user registered", "user_id", u.ID)

	ctx.JSON(http.StatusCreated, AuthResponse{
		Status:  "success",
		Message: "Registration successful",
		Token:   token,
		User:    u.Public(),
	})
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req user.LoginRequest

	if !BindJSON(ctx, &req) {
		h.prom.AuthEvent("login", "invalid")
		return
	}

	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		h.prom.AuthEvent("login", "invalid")
		RespondValidation(ctx, "Please provide email and password", nil)
		return
	}

	// short timeout for DB lookup
	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	foundUser, err := h.users.FindByEmail(cctx, h.normalizeEmail(req.Email))
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			h.log.ErrorContext(ctx.Request.Context(), "login lookup failed", "err", err)
			RespondInternal(ctx, "Could not log in")
			return
		}

		_ = h.hasher.CheckPassword(h.dummyPasswordHash(), req.Password)

		h.prom.AuthEvent("login", "invalid_credentials")
		RespondUnauthorized(ctx, apierr.CodeInvalidCredentials, invalidCredentialsMsg)
		return
	}

	err = h.hasher.CheckPassword(foundUser.PasswordHash, req.Password)

	if err != nil {
		h.prom.AuthEvent("login", "invalid_credentials")
		RespondUnauthorized(ctx, apierr.CodeInvalidCredentials, invalidCredentialsMsg)
		return
	}

	token, ok := h.issueSession(ctx, foundUser.ID)
	if !ok {
		return
	}

	h.prom.AuthEvent("login", "ok")

	ctx.JSON(http.StatusOK, AuthResponse{
		Status:  "success",
		Message: "Login successful",
		Token:   token,
		User:    foundUser.Public(),
	})
}

// Logout only clears the browser cookie; issued tokens stay valid until expiry.
func (h *AuthHandler) Logout(ctx *gin.Context) {
	http.SetCookie(ctx.Writer, &http.Cookie{
		Name:     auth.CookieName,
		Value:    auth.LoggedOutValue,
		Path:     "/",
		Expires:  time.Now().Add(10 * time.Second),
		MaxAge:   10,
		HttpOnly: true,
		Secure:   h.cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})

	h.prom.AuthEvent("logout", "ok")

	ctx.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Logged out successfully",
	})
}

// Me serves both /me and GET /profile.
func (h *AuthHandler) Me(ctx *gin.Context) {
	current, ok := middlewares.UserFromContext(ctx)
	if !ok {
		RespondUnauthorized(ctx, apierr.CodeNotAuthenticated, "You are not logged in! Please log in to get access.")
		return
	}

	ctx.JSON(http.StatusOK, userResponse(current))
}

func (h *AuthHandler) UpdateProfile(ctx *gin.Context) {
	current, ok := middlewares.UserFromContext(ctx)
	if !ok {
		RespondUnauthorized(ctx, apierr.CodeNotAuthenticated, "You are not logged in! Please log in to get access.")
		return
	}

	var req user.UpdateProfileRequest

	if !BindJSON(ctx, &req) {
		return
	}

	upd := req.ToUpdate(h.normalizeEmail)
	if upd.Empty() {
		RespondValidation(ctx, "Provide at least one of firstName, lastName, email", nil)
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	updated, err := h.users.UpdateProfile(cctx, current.ID, upd)
	if err != nil {
		switch {
		case errors.Is(err, user.ErrEmailTaken):
			RespondDuplicate(ctx, "Email already in use")
		case errors.Is(err, user.ErrNotFound):
			RespondUnauthorized(ctx, apierr.CodeStaleToken, "The user belonging to this token no longer exists.")
		default:
			h.log.ErrorContext(ctx.Request.Context(), "update profile failed", "err", err)
			RespondInternal(ctx, "Could not update profile")
		}
		return
	}

	ctx.JSON(http.StatusOK, userResponse(updated))
}

// DeleteAll is mounted behind the guard and the admin role gate.
func (h *AuthHandler) DeleteAll(ctx *gin.Context) {
	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 10*time.Second)
	defer cancel()

	n, err := h.users.DeleteAll(cctx)
	if err != nil {
		h.log.ErrorContext(ctx.Request.Context(), "delete all users failed", "err", err)
		RespondInternal(ctx, "Could not delete users")
		return
	}

	actor, _ := middlewares.UserFromContext(ctx)
	h.log.WarnContext(ctx.Request.Context(), "all users deleted", "deleted", n, "actor_id", actor.ID)

	ctx.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "All users deleted",
		"data":    gin.H{"deleted": n},
	})
}

// Helper functions

// issueSession signs a token and sets the cookie. On failure it writes the
// error response itself.
func (h *AuthHandler) issueSession(ctx *gin.Context, userID string) (string, bool) {
	token, expiresAt, err := h.tokens.Issue(userID)

	if err != nil {
		h.log.ErrorContext(ctx.Request.Context(), "token issue failed", "user_id", userID, "err", err)
		RespondInternal(ctx, "Could not generate access token")
		return "", false
	}

	h.setAuthCookie(ctx, token, expiresAt)

	return token, true
}

func (h *AuthHandler) setAuthCookie(ctx *gin.Context, token string, expiresAt time.Time) {
	http.SetCookie(ctx.Writer, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) dummyPasswordHash() string {
	h.dummyOnce.Do(func() {
		hash, err := h.hasher.HashPassword(uuid.NewString())
		if err != nil {
			h.log.Error("dummy password hash failed", "err", err)
			return
		}
		h.dummyHash = hash
	})
	return h.dummyHash
}

func (h *AuthHandler) normalizeEmail(email string) string {
	return user.NormalizeEmail(email, h.cfg.EmailCaseInsensitive)
}

func userResponse(u user.User) UserResponse {
	var resp UserResponse
	resp.Status = "success"
	resp.Data.User = u.Public()
	return resp
}
