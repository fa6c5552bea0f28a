package handlers

import (
	"net/http"

	"github.com/geocoder89/authhub/internal/http/apierr"
	"github.com/gin-gonic/gin"
)

func RespondError(ctx *gin.Context, status int, code, message string, details interface{}) {
	apierr.Write(ctx, status, code, message, details)
}

func RespondValidation(ctx *gin.Context, message string, details interface{}) {
	RespondError(ctx, http.StatusBadRequest, apierr.CodeValidation, message, details)
}

func RespondDuplicate(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusBadRequest, apierr.CodeDuplicateKey, message, nil)
}

func RespondUnauthorized(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusUnauthorized, code, message, nil)
}

func RespondNotFound(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusNotFound, apierr.CodeNotFound, message, nil)
}

// RespondInternal never echoes the underlying error; callers log it.
func RespondInternal(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusInternalServerError, apierr.CodeInternal, message, nil)
}
