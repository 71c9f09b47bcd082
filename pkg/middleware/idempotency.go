package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/ride-booking/pkg/common"
	"github.com/richxcame/ride-booking/pkg/logger"
	redisClient "github.com/richxcame/ride-booking/pkg/redis"
	"go.uber.org/zap"
)

const (
	// IdempotencyKeyHeader is the HTTP header for idempotency keys
	IdempotencyKeyHeader = "Idempotency-Key"
	idempotencyPrefix    = "idempotency:"
)

type idempotencyEntry struct {
	StatusCode  int             `json:"status_code"`
	ContentType string          `json:"content_type"`
	Body        json.RawMessage `json:"body"`
	RequestHash string          `json:"request_hash"`
}

type idempotencyResponseWriter struct {
	gin.ResponseWriter
	body       *bytes.Buffer
	statusCode int
}

func (w *idempotencyResponseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *idempotencyResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// Idempotency replays the stored 2xx response for a repeated Idempotency-Key
// instead of running the handler again. Keys are scoped per rider; reusing a
// key with a different body is answered with 422. A redis outage degrades to
// running the handler, whose own guards still apply.
func Idempotency(store redisClient.ClientInterface, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost && c.Request.Method != http.MethodPatch && c.Request.Method != http.MethodPut {
			c.Next()
			return
		}

		idempotencyKey := c.GetHeader(IdempotencyKeyHeader)
		if idempotencyKey == "" {
			c.Next()
			return
		}

		var bodyBytes []byte
		if c.Request.Body != nil {
			var err error
			bodyBytes, err = io.ReadAll(c.Request.Body)
			if err != nil {
				common.ErrorResponse(c, http.StatusBadRequest, "failed to read request body")
				c.Abort()
				return
			}
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))

		requestHash := hashRequest(c.Request.Method, c.FullPath(), bodyBytes)
		userID := c.GetString(UserIDKey)
		redisKey := fmt.Sprintf("%s%s:%s", idempotencyPrefix, userID, idempotencyKey)

		cached, err := store.GetString(c.Request.Context(), redisKey)
		switch {
		case err == nil && cached != "":
			var entry idempotencyEntry
			if err := json.Unmarshal([]byte(cached), &entry); err == nil {
				if entry.RequestHash != requestHash {
					common.ErrorResponse(c, http.StatusUnprocessableEntity,
						"Idempotency-Key has already been used with a different request")
					c.Abort()
					return
				}

				c.Header("Idempotent-Replayed", "true")
				c.Data(entry.StatusCode, entry.ContentType, entry.Body)
				c.Abort()
				return
			}
		case err != nil && !errors.Is(err, redisClient.Nil):
			logger.WarnContext(c.Request.Context(), "idempotency lookup failed",
				zap.String("key", idempotencyKey),
				zap.Error(err),
			)
		}

		writer := &idempotencyResponseWriter{
			ResponseWriter: c.Writer,
			body:           &bytes.Buffer{},
			statusCode:     http.StatusOK,
		}
		c.Writer = writer

		c.Next()

		if writer.statusCode < 200 || writer.statusCode >= 300 {
			return
		}

		contentType := writer.Header().Get("Content-Type")
		if contentType == "" {
			contentType = "application/json; charset=utf-8"
		}
		data, err := json.Marshal(idempotencyEntry{
			StatusCode:  writer.statusCode,
			ContentType: contentType,
			Body:        writer.body.Bytes(),
			RequestHash: requestHash,
		})
		if err != nil {
			return
		}
		if err := store.SetWithExpiration(c.Request.Context(), redisKey, string(data), ttl); err != nil {
			logger.WarnContext(c.Request.Context(), "failed to cache idempotency response",
				zap.String("key", idempotencyKey),
				zap.Error(err),
			)
		}
	}
}

func hashRequest(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte(path))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
