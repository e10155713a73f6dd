package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// HTTPLogger はリクエストの開始と完了を構造化ログに出力するGinミドルウェアを返す。
func HTTPLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		requestID := GetRequestID(c)

		slog.Info("request_started",
			slog.String("request_id", requestID),
			slog.String("method", c.Request.Method),
			slog.String("path", path),
		)

		c.Next()

		slog.Info("request_completed",
			slog.String("request_id", requestID),
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.Int("status_code", c.Writer.Status()),
			slog.Float64("latency_ms", float64(time.Since(start).Microseconds())/1000),
		)
	}
}
