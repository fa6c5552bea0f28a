package middlewares

import "github.com/geocoder89/authhub/internal/http/apierr"

// gin context keys
const (
	CtxRequestID = apierr.RequestIDKey
	ctxUserKey   = "auth.user"
)
