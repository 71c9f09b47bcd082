package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/ride-booking/pkg/common"
	"github.com/richxcame/ride-booking/pkg/logger"
	"go.uber.org/zap"
)

// RequestTimeout puts a deadline on the request context. Handlers run on the
// request goroutine; when one returns after the deadline without writing a
// response, a 504 is sent.
func RequestTimeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		if !errors.Is(ctx.Err(), context.DeadlineExceeded) || c.Writer.Written() {
			return
		}

		logger.WithContext(ctx).Warn("Request timeout",
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method),
			zap.Duration("timeout", timeout),
		)
		c.Header("X-Timeout", "true")
		common.ErrorResponse(c, http.StatusGatewayTimeout, "Request timeout")
		c.Abort()
	}
}
