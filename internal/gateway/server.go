package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/narendersurabhi/microservices-ml-platform/pkg/config"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/httpserver"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/middleware"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/ratelimit"
)

// loginPath は認証なしで通過させるログインエンドポイント。
const loginPath = "/v1/auth/login"

// Server はGatewayサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// addr はサーバーのリッスンアドレス。
	addr string
	// routes は転送先のルート表。
	routes *RouteTable
	// proxy は上流への転送を行う。
	proxy *Proxy
	// verifier はアクセストークンを検証する。
	verifier *middleware.TokenVerifier
	// limiter はクライアント単位のレート制限カウンタ。
	limiter ratelimit.Limiter
	// rateLimit は全体とプロキシルートそれぞれの上限。
	rateLimit config.RateLimitConfig
	// corsOrigins はCORSを許可するオリジン。
	corsOrigins []string
}

// NewServer は新しいGatewayサーバーを生成する。
// ROUTES_FILEが指定されていればそのルート定義を、なければ*_SERVICE_URLから組み立てたルートを使用する。
func NewServer(cfg config.Config, limiter ratelimit.Limiter) (*Server, error) {
	var (
		routes *RouteTable
		err    error
	)
	if cfg.RoutesFile != "" {
		routes, err = LoadRoutes(cfg.RoutesFile)
	} else {
		routes, err = NewRouteTable(DefaultRoutes(cfg.Services))
	}
	if err != nil {
		return nil, fmt.Errorf("ルート表の構築に失敗: %w", err)
	}
	if limiter == nil {
		limiter = ratelimit.New(cfg.RateLimit.Strategy, cfg.RateLimit.Window)
	}

	s := &Server{
		router:      gin.New(),
		addr:        cfg.Addr(),
		routes:      routes,
		proxy:       NewProxy(cfg.UpstreamTimeout),
		verifier:    middleware.NewTokenVerifier(cfg.JWTSecret, cfg.JWTAlgorithm),
		limiter:     limiter,
		rateLimit:   cfg.RateLimit,
		corsOrigins: cfg.CORSAllowedOrigins,
	}
	// レート制限のキーは接続元アドレス。TRUSTED_PROXIESに含まれる接続元の場合のみX-Forwarded-Forを使う
	if err := s.router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("TRUSTED_PROXIESが不正です: %w", err)
	}
	s.setupRoutes()

	return s, nil
}

// Handler はHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるまで待つ。
func (s *Server) Run(ctx context.Context) error {
	return httpserver.Serve(ctx, s.addr, s.router)
}

// setupRoutes はミドルウェアとルーティングを設定する。
// 順序: 相関ID → ログ → パニック回復 → 全体のレート制限 → CORS → プロキシのレート制限 → 認証 → 転送
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.HTTPLogger())
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.RateLimit(s.limiter, s.rateLimit.Global, "global"))
	s.router.Use(middleware.CORS(s.corsOrigins))

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "gateway"})
	})

	for _, version := range []string{"/v1", "/v2"} {
		proxied := s.router.Group(version)
		proxied.Use(middleware.RateLimit(s.limiter, s.rateLimit.Proxy, "proxy"))
		proxied.Use(s.authenticate())
		proxied.Any("/*path", s.handleDispatch())
	}
}

// authenticate は転送先が存在し認証が必要なパスに対してトークンを検証するミドルウェアを返す。
// 検証に失敗したリクエストは上流に転送しない。
func (s *Server) authenticate() gin.HandlerFunc {
	verify := middleware.Authenticate(s.verifier)
	return func(c *gin.Context) {
		if !s.requiresAuth(c.Request.URL.Path) {
			c.Next()
			return
		}
		verify(c)
	}
}

// requiresAuth はパスが認証を必要とするかを判定する。
// ルートに一致しないパスは後段で404になるため認証しない。
// ヘルスチェックとして認証を省くのは各ルートの接頭辞直下の /health だけ。
func (s *Server) requiresAuth(path string) bool {
	if path == loginPath || strings.HasPrefix(path, loginPath+"/") {
		return false
	}
	route, err := s.routes.Match(path)
	if err != nil {
		return false
	}
	return path != route.Prefix+"/health"
}

// handleDispatch はルート表に従ってリクエストを転送するハンドラを返す。
func (s *Server) handleDispatch() gin.HandlerFunc {
	return func(c *gin.Context) {
		route, err := s.routes.Match(c.Request.URL.Path)
		if errors.Is(err, ErrRouteNotFound) {
			middleware.AbortWithError(c, http.StatusNotFound, middleware.CodeRouteNotFound, "ルートが見つかりません")
			return
		}
		s.proxy.Forward(c, route)
	}
}
