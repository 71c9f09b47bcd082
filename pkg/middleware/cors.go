package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS allows the rider UI origins to drive the gateway. A "*" entry allows
// any origin without credentials.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	config := cors.DefaultConfig()
	config.AllowMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{
		"Origin", "Content-Type", "Accept", "Authorization",
		IdempotencyKeyHeader, CorrelationIDHeader,
	}
	config.ExposeHeaders = []string{CorrelationIDHeader, "Idempotent-Replayed", "Retry-After", "X-RateLimit-Remaining"}
	config.MaxAge = 24 * time.Hour

	for _, origin := range allowedOrigins {
		if origin == "*" {
			config.AllowAllOrigins = true
			return cors.New(config)
		}
	}

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000"}
	}
	config.AllowOrigins = allowedOrigins
	config.AllowCredentials = true
	return cors.New(config)
}
