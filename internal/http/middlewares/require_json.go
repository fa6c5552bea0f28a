package middlewares

import (
	"net/http"
	"strings"

	"github.com/geocoder89/authhub/internal/http/apierr"
	"github.com/gin-gonic/gin"
)

// RequireJSON only checks requests that carry a body.
func RequireJSON() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			if c.Request.ContentLength == 0 {
				break
			}
			ct := c.GetHeader("Content-Type")
			// allow "application/json; charset=utf-8"
			if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
				apierr.Abort(c, http.StatusUnsupportedMediaType, apierr.CodeUnsupportedMedia, "Content-Type must be application/json")
				return
			}
		}
		c.Next()
	}
}
