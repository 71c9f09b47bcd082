package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/ride-booking/pkg/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockAllower struct {
	mock.Mock
}

func (m *mockAllower) Allow(ctx context.Context, key string) (ratelimit.Result, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(ratelimit.Result), args.Error(1)
}

func rateLimitedRouter(limiter Allower, userID string) *gin.Engine {
	r := gin.New()
	r.POST("/promo", func(c *gin.Context) {
		if userID != "" {
			c.Set(UserIDKey, userID)
		}
		c.Next()
	}, RateLimit(limiter, "promo"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestRateLimitAllows(t *testing.T) {
	limiter := new(mockAllower)
	limiter.On("Allow", mock.Anything, "promo:rider-1").
		Return(ratelimit.Result{Allowed: true, Remaining: 4, Limit: 5}, nil)

	w := httptest.NewRecorder()
	rateLimitedRouter(limiter, "rider-1").ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/promo", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "4", w.Header().Get("X-RateLimit-Remaining"))
	limiter.AssertExpectations(t)
}

func TestRateLimitRejects(t *testing.T) {
	limiter := new(mockAllower)
	limiter.On("Allow", mock.Anything, "promo:rider-1").
		Return(ratelimit.Result{Allowed: false, Limit: 5, RetryAfter: 1500 * time.Millisecond}, nil)

	w := httptest.NewRecorder()
	rateLimitedRouter(limiter, "rider-1").ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/promo", nil))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimitFailsOpen(t *testing.T) {
	limiter := new(mockAllower)
	limiter.On("Allow", mock.Anything, "promo:rider-1").
		Return(ratelimit.Result{}, errors.New("connection refused"))

	w := httptest.NewRecorder()
	rateLimitedRouter(limiter, "rider-1").ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/promo", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRateLimitSkipsAnonymous(t *testing.T) {
	limiter := new(mockAllower)

	w := httptest.NewRecorder()
	rateLimitedRouter(limiter, "").ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/promo", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	limiter.AssertNotCalled(t, "Allow", mock.Anything, mock.Anything)
}
