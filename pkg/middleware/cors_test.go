package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

// TestCORS はCORSミドルウェアを検証する。
func TestCORS(t *testing.T) {
	t.Parallel()

	newCORSRouter := func(origins []string) *gin.Engine {
		router := gin.New()
		router.Use(CORS(origins))
		router.GET("/v1/cases", func(c *gin.Context) {
			c.String(http.StatusOK, "handled")
		})
		return router
	}

	tests := []struct {
		name       string
		origins    []string
		origin     string
		method     string
		wantAllow  string
		wantStatus int
	}{
		{name: "許可されたオリジンにCORSヘッダーが設定されること", origins: []string{"http://localhost:3000"}, origin: "http://localhost:3000", method: http.MethodGet, wantAllow: "http://localhost:3000", wantStatus: http.StatusOK},
		{name: "許可リストの2番目のオリジンでも設定されること", origins: []string{"http://a.example", "http://b.example"}, origin: "http://b.example", method: http.MethodGet, wantAllow: "http://b.example", wantStatus: http.StatusOK},
		{name: "許可されていないオリジンには設定されないこと", origins: []string{"http://localhost:3000"}, origin: "http://evil.example", method: http.MethodGet, wantAllow: "", wantStatus: http.StatusOK},
		{name: "ワイルドカードで任意のオリジンが許可されること", origins: []string{"*"}, origin: "http://any.example", method: http.MethodGet, wantAllow: "http://any.example", wantStatus: http.StatusOK},
		{name: "Originヘッダーが無い場合は設定されないこと", origins: []string{"*"}, origin: "", method: http.MethodGet, wantAllow: "", wantStatus: http.StatusOK},
		{name: "OPTIONSリクエストで204が返ること", origins: []string{"http://localhost:3000"}, origin: "http://localhost:3000", method: http.MethodOptions, wantAllow: "http://localhost:3000", wantStatus: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(tt.method, "/v1/cases", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			newCORSRouter(tt.origins).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("ステータスコード = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantAllow)
			}
			if tt.method == http.MethodOptions && w.Body.String() == "handled" {
				t.Error("OPTIONSリクエストでハンドラーが実行された")
			}
		})
	}
}
