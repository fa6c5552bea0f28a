package middlewares

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/geocoder89/authhub/internal/actorctx"
	"github.com/geocoder89/authhub/internal/auth"
	"github.com/geocoder89/authhub/internal/domain/user"
	"github.com/geocoder89/authhub/internal/http/apierr"
	"github.com/geocoder89/authhub/internal/observability"
	"github.com/gin-gonic/gin"
)

// Keep these small interfaces so tests can fake them easily.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

type UserFinder interface {
	FindByID(ctx context.Context, id string) (user.User, error)
}

type AuthMiddleware struct {
	jwt   TokenVerifier
	users UserFinder
	prom  *observability.Prom
	log   *slog.Logger
}

func NewAuthMiddleware(jwt TokenVerifier, users UserFinder, prom *observability.Prom, log *slog.Logger) *AuthMiddleware {
	if log == nil {
		log = slog.Default()
	}
	return &AuthMiddleware{jwt: jwt, users: users, prom: prom, log: log}
}

// RequireAuth resolves the caller from a Bearer header or the jwt cookie and
// attaches the current user record to the request.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := tokenFromRequest(c)
		if raw == "" {
			m.prom.AuthEvent("guard", "missing_token")
			apierr.Abort(c, http.StatusUnauthorized, apierr.CodeNotAuthenticated, "You are not logged in! Please log in to get access.")
			return
		}

		claims, err := m.jwt.Verify(raw)
		if err != nil {
			m.prom.AuthEvent("guard", "invalid_token")
			m.log.DebugContext(c.Request.Context(), "token rejected", "err", err)
			apierr.Abort(c, http.StatusUnauthorized, apierr.CodeInvalidToken, "Invalid token or authorization failed")
			return
		}

		cctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		current, err := m.users.FindByID(cctx, claims.UserID)
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				m.prom.AuthEvent("guard", "stale_token")
				apierr.Abort(c, http.StatusUnauthorized, apierr.CodeStaleToken, "The user belonging to this token no longer exists.")
				return
			}

			m.log.ErrorContext(c.Request.Context(), "guard user lookup failed", "user_id", claims.UserID, "err", err)
			abortInternal(c, "Something went wrong!")
			return
		}

		m.prom.AuthEvent("guard", "ok")

		current.PasswordHash = ""
		c.Set(ctxUserKey, current)
		c.Request = c.Request.WithContext(actorctx.WithUserID(c.Request.Context(), current.ID))

		c.Next()
	}
}

// Authorization header wins; the cookie is the browser fallback.
func tokenFromRequest(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if scheme, rest, ok := strings.Cut(authHeader, " "); ok && strings.EqualFold(scheme, "Bearer") {
		if raw := strings.TrimSpace(rest); raw != "" {
			return raw
		}
	}

	raw, err := c.Cookie(auth.CookieName)
	if err != nil || raw == auth.LoggedOutValue {
		return ""
	}

	return strings.TrimSpace(raw)
}

// UserFromContext returns the user attached by RequireAuth.
func UserFromContext(c *gin.Context) (user.User, bool) {
	v, ok := c.Get(ctxUserKey)
	if !ok {
		return user.User{}, false
	}
	u, ok := v.(user.User)
	return u, ok
}

func abortInternal(c *gin.Context, message string) {
	apierr.Abort(c, http.StatusInternalServerError, apierr.CodeInternal, message)
}
