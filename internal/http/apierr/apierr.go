// Package apierr writes the JSON error envelope shared by handlers and
// middlewares: {status, code, message, requestId, details}.
package apierr

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeValidation         = "validation_error"
	CodeDuplicateKey       = "duplicate_key"
	CodeInvalidCredentials = "invalid_credentials"
	CodeNotAuthenticated   = "not_authenticated"
	CodeInvalidToken       = "invalid_token"
	CodeStaleToken         = "stale_token"
	CodeForbidden          = "forbidden"
	CodeNotFound           = "not_found"
	CodeUnsupportedMedia   = "unsupported_media_type"
	CodeInternal           = "internal_error"
	CodeUnavailable        = "service_unavailable"
)

// RequestIDKey is the gin context key the request id middleware sets.
const RequestIDKey = "request_id"

const (
	requestIDHeader = "X-Request-Id"
	statusFail      = "fail"
	statusError     = "error"
)

type Envelope struct {
	Status    string      `json:"status"`
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	RequestID string      `json:"requestId,omitempty"`
	Details   interface{} `json:"details,omitempty"`
}

func RequestID(ctx *gin.Context) string {
	v, ok := ctx.Get(RequestIDKey)

	if ok {
		s, ok := v.(string)
		if ok && s != "" {
			return s
		}
	}

	// fallback header
	return ctx.GetHeader(requestIDHeader)
}

func New(ctx *gin.Context, status int, code, message string, details interface{}) Envelope {
	word := statusFail
	if status >= http.StatusInternalServerError {
		word = statusError
	}

	return Envelope{
		Status:    word,
		Code:      code,
		Message:   message,
		RequestID: RequestID(ctx),
		Details:   details,
	}
}

func Write(ctx *gin.Context, status int, code, message string, details interface{}) {
	ctx.JSON(status, New(ctx, status, code, message, details))
}

// Abort writes the envelope and stops the handler chain.
func Abort(ctx *gin.Context, status int, code, message string) {
	ctx.AbortWithStatusJSON(status, New(ctx, status, code, message, nil))
}
