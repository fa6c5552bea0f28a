package middlewares

import (
	"net/http"

	"github.com/geocoder89/authhub/internal/http/apierr"
	"github.com/gin-gonic/gin"
)

// RestrictTo must run after RequireAuth. It rejects callers whose role is not
// in the allow-list.
func RestrictTo(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(c *gin.Context) {
		current, ok := UserFromContext(c)

		if !ok {
			apierr.Abort(c, http.StatusUnauthorized, apierr.CodeNotAuthenticated, "Missing identity context")
			return
		}

		if _, ok := allowed[current.Role]; !ok {
			apierr.Abort(c, http.StatusForbidden, apierr.CodeForbidden, "You do not have permission to perform this action")
			return
		}
		c.Next()
	}
}
