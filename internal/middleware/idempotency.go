package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ridedispatch/internal/logger"
	"ridedispatch/internal/redis"
)

const (
	idempotencyHeader = "Idempotency-Key"
	idempotencyTTL    = 24 * time.Hour
)

// replay is the stored outcome of the first request for a key.
type replay struct {
	Status      int             `json:"status"`
	ContentType string          `json:"content_type,omitempty"`
	Body        json.RawMessage `json:"body"`
}

// recordingWriter tees the body into a buffer while it is written.
type recordingWriter struct {
	gin.ResponseWriter
	recorded bytes.Buffer
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.recorded.Write(b)
	return w.ResponseWriter.Write(b)
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

// IdempotencyMiddleware replays the stored response of a mutating request
// retried with the same Idempotency-Key. Keys are scoped to the caller and
// route, so two users cannot collide. A nil store disables replay, and store
// failures degrade to normal processing.
func IdempotencyMiddleware(store redis.IdempotencyStoreInterface, log *zap.Logger) gin.HandlerFunc {
	log = logger.OrNop(log)
	return func(c *gin.Context) {
		key := c.GetHeader(idempotencyHeader)
		if store == nil || key == "" || !isMutating(c.Request.Method) {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		cacheKey := idempotencyScope(c) + ":" + key

		data, found, err := store.Get(ctx, cacheKey)
		if err != nil {
			log.Warn("idempotency lookup failed", zap.String("key", cacheKey), zap.Error(err))
			c.Next()
			return
		}

		if found {
			var prev replay
			if err := json.Unmarshal(data, &prev); err == nil {
				contentType := prev.ContentType
				if contentType == "" {
					contentType = "application/json; charset=utf-8"
				}
				c.Header("Idempotent-Replayed", "true")
				c.Data(prev.Status, contentType, prev.Body)
				c.Abort()
				return
			}
			log.Warn("discarding unreadable idempotent response", zap.String("key", cacheKey))
		}

		w := &recordingWriter{ResponseWriter: c.Writer}
		c.Writer = w

		c.Next()

		// Server errors are not cached so the client may retry them.
		status := c.Writer.Status()
		if status < 200 || status >= 500 {
			return
		}
		payload, err := json.Marshal(replay{
			Status:      status,
			ContentType: w.Header().Get("Content-Type"),
			Body:        w.recorded.Bytes(),
		})
		if err != nil {
			return
		}
		if err := store.Set(ctx, cacheKey, payload, idempotencyTTL); err != nil {
			log.Warn("idempotency store failed", zap.String("key", cacheKey), zap.Error(err))
		}
	}
}

func idempotencyScope(c *gin.Context) string {
	user := "anonymous"
	if p, ok := PrincipalFrom(c); ok {
		user = p.UserID
	}
	return user + ":" + c.Request.Method + ":" + c.Request.URL.Path
}
