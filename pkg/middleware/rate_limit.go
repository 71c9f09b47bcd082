package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/ride-booking/pkg/common"
	"github.com/richxcame/ride-booking/pkg/logger"
	"github.com/richxcame/ride-booking/pkg/ratelimit"
	"go.uber.org/zap"
)

// Allower takes one token from a rate limit bucket.
type Allower interface {
	Allow(ctx context.Context, key string) (ratelimit.Result, error)
}

// RateLimit limits an authenticated route per user. Requests without a user
// and limiter failures pass through.
func RateLimit(limiter Allower, endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(UserIDKey)
		if userID == "" {
			c.Next()
			return
		}

		result, err := limiter.Allow(c.Request.Context(), endpoint+":"+userID)
		if err != nil {
			logger.WarnContext(c.Request.Context(), "rate limit evaluation failed",
				zap.String("endpoint", endpoint),
				zap.Error(err),
			)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))

		if result.Allowed {
			c.Next()
			return
		}

		retrySeconds := int(result.RetryAfter.Round(time.Second) / time.Second)
		if retrySeconds <= 0 {
			retrySeconds = 1
		}
		c.Header("Retry-After", strconv.Itoa(retrySeconds))

		logger.WarnContext(c.Request.Context(), "rate limit exceeded",
			zap.String("endpoint", endpoint),
			zap.Int("retry_after_seconds", retrySeconds),
		)

		common.ErrorResponse(c, http.StatusTooManyRequests, "rate limit exceeded")
		c.Abort()
	}
}
