package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/narendersurabhi/microservices-ml-platform/pkg/ratelimit"
)

// TestRateLimit はRateLimitミドルウェアを検証する。
func TestRateLimit(t *testing.T) {
	t.Parallel()

	t.Run("上限を超えたリクエストは429となりハンドラーが呼ばれないこと", func(t *testing.T) {
		t.Parallel()

		calls := 0
		router := gin.New()
		router.Use(RequestID(), RateLimit(ratelimit.NewFixedWindow(time.Minute), 3, "proxy"))
		router.GET("/v1/cases", func(c *gin.Context) {
			calls++
			c.Status(http.StatusOK)
		})

		codes := make([]int, 0, 4)
		var last *httptest.ResponseRecorder
		for i := 0; i < 4; i++ {
			req := httptest.NewRequest(http.MethodGet, "/v1/cases", nil)
			req.RemoteAddr = "192.0.2.10:5555"
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			codes = append(codes, w.Code)
			last = w
		}

		want := []int{200, 200, 200, 429}
		for i := range want {
			if codes[i] != want[i] {
				t.Errorf("%d回目のステータス = %d, want %d", i+1, codes[i], want[i])
			}
		}
		if calls != 3 {
			t.Errorf("ハンドラー呼び出し回数 = %d, want 3", calls)
		}
		if last.Header().Get("Retry-After") == "" {
			t.Error("Retry-Afterヘッダーが設定されていない")
		}
		if got := last.Header().Get("X-RateLimit-Remaining"); got != "0" {
			t.Errorf("X-RateLimit-Remaining = %q, want %q", got, "0")
		}
		if body := decodeBody(t, last); body["code"] != CodeRateLimited {
			t.Errorf("code = %v, want %q", body["code"], CodeRateLimited)
		}
	})

	t.Run("厳しい方の上限が適用されること", func(t *testing.T) {
		t.Parallel()

		limiter := ratelimit.NewFixedWindow(time.Minute)
		router := gin.New()
		router.Use(RateLimit(limiter, 5, "global"))
		router.GET("/v1/cases", RateLimit(limiter, 2, "proxy"), func(c *gin.Context) {
			c.Status(http.StatusOK)
		})

		rejected := 0
		for i := 0; i < 3; i++ {
			req := httptest.NewRequest(http.MethodGet, "/v1/cases", nil)
			req.RemoteAddr = "192.0.2.20:5555"
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code == http.StatusTooManyRequests {
				rejected++
			}
		}
		if rejected != 1 {
			t.Errorf("拒否数 = %d, want 1", rejected)
		}
	})

	t.Run("クライアントごとに独立して数えること", func(t *testing.T) {
		t.Parallel()

		router := gin.New()
		router.Use(RateLimit(ratelimit.NewSlidingWindow(time.Minute), 1, "global"))
		router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

		for _, addr := range []string{"192.0.2.30:1", "192.0.2.31:1"} {
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			req.RemoteAddr = addr
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != http.StatusOK {
				t.Errorf("%s のステータス = %d, want 200", addr, w.Code)
			}
		}
	})
}
