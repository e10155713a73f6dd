package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

// decodeBody はJSONレスポンスボディをマップにデコードする。
func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスボディのパースに失敗: %v (body=%s)", err, w.Body.String())
	}
	return body
}

// TestRecovery はRecoveryミドルウェアを検証する。
func TestRecovery(t *testing.T) {
	t.Parallel()

	newPanicRouter := func(value any) *gin.Engine {
		router := gin.New()
		router.Use(RequestID(), Recovery())
		router.Any("/panic", func(_ *gin.Context) {
			panic(value)
		})
		router.GET("/ok", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
		return router
	}

	tests := []struct {
		name   string
		value  any
		method string
	}{
		{name: "文字列のパニックで500が返ること", value: "テスト用パニック", method: http.MethodGet},
		{name: "error型のパニック値でも500が返ること", value: errors.New("テスト用エラー"), method: http.MethodGet},
		{name: "POSTリクエストでのパニックでも500が返ること", value: 42, method: http.MethodPost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			router := newPanicRouter(tt.value)
			req := httptest.NewRequest(tt.method, "/panic", nil)
			req.Header.Set("X-Request-Id", "req-panic")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusInternalServerError {
				t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusInternalServerError)
			}
			body := decodeBody(t, w)
			if body["error"] != "内部サーバーエラーが発生しました" {
				t.Errorf("error = %v", body["error"])
			}
			// パニック時も相関IDが保持されること
			if body["request_id"] != "req-panic" {
				t.Errorf("request_id = %v, want %q", body["request_id"], "req-panic")
			}
			if got := w.Header().Get("X-Request-Id"); got != "req-panic" {
				t.Errorf("X-Request-Id = %q, want %q", got, "req-panic")
			}
		})
	}

	t.Run("パニック後もサーバーが次のリクエストを処理できること", func(t *testing.T) {
		t.Parallel()

		router := newPanicRouter("一時的なパニック")
		w1 := httptest.NewRecorder()
		router.ServeHTTP(w1, httptest.NewRequest(http.MethodGet, "/panic", nil))

		w2 := httptest.NewRecorder()
		router.ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/ok", nil))
		if w2.Code != http.StatusOK {
			t.Errorf("ステータスコード = %d, want %d", w2.Code, http.StatusOK)
		}
	})
}
