package user

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"

	"github.com/narendersurabhi/microservices-ml-platform/pkg/config"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testJWTSecret はテスト用のJWT署名秘密鍵。
const testJWTSecret = "test-secret-key"

// setupTestServer はインメモリSQLiteを使ったテスト用のユーザーサーバーを生成する。
func setupTestServer(t *testing.T) *Server {
	t.Helper()

	v := viper.New()
	v.Set("jwt_secret", testJWTSecret)
	v.Set("database_url", "sqlite://:memory:")
	cfg, err := config.Load(v, "user")
	if err != nil {
		t.Fatalf("config.Load()でエラーが発生: %v", err)
	}
	s, err := NewServer(t.Context(), cfg)
	if err != nil {
		t.Fatalf("NewServer()でエラーが発生: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// tokenFor はロールを持つテスト用トークンを発行する。
func tokenFor(t *testing.T, role middleware.Role) string {
	t.Helper()

	issuer, err := middleware.NewTokenIssuer(testJWTSecret, "HS256", time.Minute)
	if err != nil {
		t.Fatalf("NewTokenIssuer()でエラーが発生: %v", err)
	}
	token, _, err := issuer.Issue(string(role)+"@example.com", role)
	if err != nil {
		t.Fatalf("Issue()でエラーが発生: %v", err)
	}
	return token
}

// doRequest はテスト用のHTTPリクエストを実行する。
func doRequest(s *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

// TestHandleCreate はユーザー登録を検証する。
func TestHandleCreate(t *testing.T) {
	t.Parallel()

	s := setupTestServer(t)
	admin := tokenFor(t, middleware.RoleAdmin)

	t.Run("管理者がユーザーを登録できること", func(t *testing.T) {
		w := doRequest(s, http.MethodPost, "/v1/users", admin, map[string]string{
			"email": "alice@example.com", "role": "analyst", "full_name": "Alice",
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("ステータスコード = %d, want %d (body=%s)", w.Code, http.StatusCreated, w.Body.String())
		}
		var resp userResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("レスポンスのJSONデコードに失敗: %v", err)
		}
		if resp.ID == "" || resp.Email != "alice@example.com" || resp.Role != "analyst" || resp.CreatedAt.IsZero() {
			t.Errorf("resp = %+v", resp)
		}
	})

	tests := []struct {
		name  string
		token string
		body  map[string]string
		want  int
	}{
		{name: "分析者は登録できないこと", token: tokenFor(t, middleware.RoleAnalyst),
			body: map[string]string{"email": "b@example.com", "role": "viewer", "full_name": "B"}, want: http.StatusForbidden},
		{name: "トークンがない場合401になること",
			body: map[string]string{"email": "b@example.com", "role": "viewer", "full_name": "B"}, want: http.StatusUnauthorized},
		{name: "不正なメールアドレスは400になること", token: admin,
			body: map[string]string{"email": "not-an-email", "role": "viewer", "full_name": "B"}, want: http.StatusBadRequest},
		{name: "未知のロールは400になること", token: admin,
			body: map[string]string{"email": "b@example.com", "role": "root", "full_name": "B"}, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := doRequest(s, http.MethodPost, "/v1/users", tt.token, tt.body); w.Code != tt.want {
				t.Errorf("ステータスコード = %d, want %d (body=%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

// TestHandleGet はユーザーの一覧と詳細の取得を検証する。
func TestHandleGet(t *testing.T) {
	t.Parallel()

	s := setupTestServer(t)
	admin := tokenFor(t, middleware.RoleAdmin)
	viewer := tokenFor(t, middleware.RoleViewer)

	w := doRequest(s, http.MethodPost, "/v1/users", admin, map[string]string{
		"email": "carol@example.com", "role": "viewer", "full_name": "Carol",
	})
	var created userResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("登録レスポンスのJSONデコードに失敗: %v", err)
	}

	t.Run("閲覧者が詳細を取得できること", func(t *testing.T) {
		w := doRequest(s, http.MethodGet, "/v1/users/"+created.ID, viewer, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		var got userResponse
		_ = json.Unmarshal(w.Body.Bytes(), &got)
		if got.ID != created.ID || got.FullName != "Carol" {
			t.Errorf("got = %+v", got)
		}
	})

	t.Run("存在しないIDは404になること", func(t *testing.T) {
		w := doRequest(s, http.MethodGet, "/v1/users/unknown", viewer, nil)
		if w.Code != http.StatusNotFound {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusNotFound)
		}
		var body map[string]any
		_ = json.Unmarshal(w.Body.Bytes(), &body)
		if body["code"] != middleware.CodeNotFound {
			t.Errorf("code = %v, want %s", body["code"], middleware.CodeNotFound)
		}
	})

	t.Run("閲覧者は一覧を取得できないこと", func(t *testing.T) {
		if w := doRequest(s, http.MethodGet, "/v1/users", viewer, nil); w.Code != http.StatusForbidden {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusForbidden)
		}
	})

	t.Run("分析者は一覧を取得できること", func(t *testing.T) {
		w := doRequest(s, http.MethodGet, "/v1/users", tokenFor(t, middleware.RoleAnalyst), nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		var list []userResponse
		_ = json.Unmarshal(w.Body.Bytes(), &list)
		if len(list) != 1 {
			t.Errorf("len(list) = %d, want 1", len(list))
		}
	})

	t.Run("ヘルスチェックは認証なしで応答すること", func(t *testing.T) {
		if w := doRequest(s, http.MethodGet, "/v1/users/health", "", nil); w.Code != http.StatusOK {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
	})
}
