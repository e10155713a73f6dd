package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/narendersurabhi/microservices-ml-platform/pkg/config"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/httpserver"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/middleware"
)

// Server は認証サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// addr はサーバーのリッスンアドレス。
	addr string
	// directory はアカウントの照合先。
	directory *Directory
	// issuer はアクセストークンを発行する。
	issuer *middleware.TokenIssuer
	// serviceName はヘルスチェックで返すサービス名。
	serviceName string
}

// NewServer は新しい認証サーバーを生成する。
func NewServer(cfg config.Config) (*Server, error) {
	directory, err := NewDemoDirectory(bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("アカウントの初期化に失敗: %w", err)
	}
	return newServer(cfg, directory)
}

func newServer(cfg config.Config, directory *Directory) (*Server, error) {
	issuer, err := middleware.NewTokenIssuer(cfg.JWTSecret, cfg.JWTAlgorithm, cfg.JWTExpire)
	if err != nil {
		return nil, fmt.Errorf("トークン発行者の初期化に失敗: %w", err)
	}

	s := &Server{
		router:      gin.New(),
		addr:        cfg.Addr(),
		directory:   directory,
		issuer:      issuer,
		serviceName: cfg.ServiceName,
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

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.HTTPLogger())
	s.router.Use(middleware.Recovery())

	health := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": s.serviceName})
	}
	s.router.GET("/health", health)

	auth := s.router.Group("/v1/auth")
	{
		// ログイン（認証不要）
		auth.POST("/login", s.handleLogin())
		auth.GET("/health", health)
	}
}

// loginRequest はログインリクエスト。フォームとJSONの両方を受け付ける。
type loginRequest struct {
	// Username はメールアドレス。
	Username string `form:"username" json:"username" binding:"required"`
	// Password はパスワード。
	Password string `form:"password" json:"password" binding:"required"`
}

// tokenResponse はログイン成功時のレスポンス。
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Role        string `json:"role"`
}

// handleLogin はログインを処理してアクセストークンを返すハンドラを返す。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBind(&req); err != nil {
			middleware.AbortWithError(c, http.StatusBadRequest, middleware.CodeBadRequest, "usernameとpasswordは必須です")
			return
		}

		account, err := s.directory.Authenticate(req.Username, req.Password)
		if errors.Is(err, ErrInvalidLogin) {
			slog.Warn("login_failed",
				slog.String("request_id", middleware.GetRequestID(c)),
				slog.String("username", req.Username),
			)
			middleware.AbortWithError(c, http.StatusUnauthorized, middleware.CodeInvalidCredential, "ユーザー名またはパスワードが正しくありません")
			return
		}

		token, expiresIn, err := s.issuer.Issue(account.Username, account.Role)
		if err != nil {
			slog.Error("token_issue_failed", slog.String("error", err.Error()))
			middleware.AbortWithError(c, http.StatusInternalServerError, middleware.CodeInternal, "トークンの発行に失敗しました")
			return
		}

		c.JSON(http.StatusOK, tokenResponse{
			AccessToken: token,
			TokenType:   "bearer",
			ExpiresIn:   expiresIn,
			Role:        string(account.Role),
		})
	}
}
