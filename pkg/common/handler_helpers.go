package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/ride-booking/pkg/logger"
	"go.uber.org/zap"
)

// HandleServiceError writes err to the response and reports whether it did.
// Typed *AppError values keep their status; anything else is logged and
// answered with fallbackCode.
//
// Usage:
//
//	snap, err := h.wizard.Continue()
//	if HandleServiceError(c, err, http.StatusInternalServerError, "failed to continue") {
//	    return
//	}
func HandleServiceError(c *gin.Context, err error, fallbackCode int, fallbackMessage string) bool {
	if err == nil {
		return false
	}

	if appErr, ok := AsAppError(err); ok {
		AppErrorResponse(c, appErr)
		return true
	}

	logger.ErrorContext(c.Request.Context(), fallbackMessage, zap.Error(err))
	ErrorResponse(c, fallbackCode, fallbackMessage)
	return true
}

// BindJSON binds the JSON body and answers 400 on failure.
// Returns true on success, false on failure (response already sent).
func BindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// RequireParam returns a non-empty path parameter or answers 400.
func RequireParam(c *gin.Context, name, displayName string) (string, bool) {
	value := c.Param(name)
	if value == "" {
		ErrorResponse(c, http.StatusBadRequest, displayName+" is required")
		return "", false
	}
	return value, true
}
