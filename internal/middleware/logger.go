package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const RequestIDHeader = "X-Request-ID"

// RequestLogger はリクエストIDを採番し、リクエスト単位のロガーをコンテキストに載せる。
// 完了時にアクセスログを出し、panic は 500 に変換する
func RequestLogger(base zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(RequestIDHeader, requestID)

		logger := base.With().Str("request_id", requestID).Logger()
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context()))

		defer func() {
			if rec := recover(); rec != nil {
				zerolog.Ctx(c.Request.Context()).Error().
					Str("method", c.Request.Method).
					Str("path", c.Request.URL.Path).
					Str("panic", fmt.Sprintf("%v", rec)).
					Msg("request panicked")
				abortWithError(c, http.StatusInternalServerError, "internal_error", "Internal server error")
			}

			event := zerolog.Ctx(c.Request.Context()).Info()
			if c.Writer.Status() >= http.StatusInternalServerError {
				event = zerolog.Ctx(c.Request.Context()).Error()
			}
			event.
				Str("method", c.Request.Method).
				Str("path", c.Request.URL.Path).
				Int("status", c.Writer.Status()).
				Dur("latency", time.Since(start)).
				Msg("request completed")
		}()

		c.Next()
	}
}
