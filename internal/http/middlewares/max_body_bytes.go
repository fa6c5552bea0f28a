package middlewares

import (
	"net/http"

	"github.com/geocoder89/authhub/internal/http/apierr"
	"github.com/gin-gonic/gin"
)

func MaxBodyBytes(max int64) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if max <= 0 {
			ctx.Next()
			return
		}

		if ctx.Request.ContentLength > max {
			apierr.Abort(ctx, http.StatusRequestEntityTooLarge, apierr.CodeValidation, "Request body too large")
			return
		}

		ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, max)

		ctx.Next()
	}
}
