package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/narendersurabhi/microservices-ml-platform/pkg/ratelimit"
)

// RateLimit はクライアントアドレス単位でリクエスト数を制限するGinミドルウェアを返す。
// scopeはカウンタのキー空間を分ける名前（例: "global", "proxy"）。
// 上限を超えたリクエストは429で中断し、後続のハンドラ（上流への転送を含む）は呼ばない。
func RateLimit(limiter ratelimit.Limiter, limit int, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		d := limiter.Allow(c.Request.Context(), scope+":"+c.ClientIP(), limit)

		c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if !d.Allowed {
			retryAfter := int(math.Ceil(d.RetryAfter(time.Now()).Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			slog.Warn("rate_limited",
				slog.String("request_id", GetRequestID(c)),
				slog.String("scope", scope),
				slog.String("client", c.ClientIP()),
			)
			AbortWithError(c, http.StatusTooManyRequests, CodeRateLimited, "リクエスト数の上限を超えました")
			return
		}
		c.Next()
	}
}
