package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	userdb "github.com/narendersurabhi/microservices-ml-platform/internal/user/db"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/config"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/database"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/httpserver"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/middleware"
)

// Server はユーザーサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// addr はサーバーのリッスンアドレス。
	addr string
	// queries はユーザーテーブルへのクエリ。
	queries *userdb.Queries
	// db はデータベース接続。
	db *database.DB
	// verifier はアクセストークンを検証する。
	verifier *middleware.TokenVerifier
	// serviceName はヘルスチェックで返すサービス名。
	serviceName string
	// now は現在時刻を返す。
	now func() time.Time
}

// NewServer は新しいユーザーサーバーを生成する。
// データベースへの接続とマイグレーションを行う。
func NewServer(ctx context.Context, cfg config.Config) (*Server, error) {
	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	s := &Server{
		router:      gin.New(),
		addr:        cfg.Addr(),
		queries:     userdb.New(db, db.Dialect),
		db:          db,
		verifier:    middleware.NewTokenVerifier(cfg.JWTSecret, cfg.JWTAlgorithm),
		serviceName: cfg.ServiceName,
		now:         time.Now,
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

// Close はデータベース接続を閉じる。
func (s *Server) Close() error {
	return s.db.Close()
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

	users := s.router.Group("/v1/users")
	{
		users.GET("/health", health)
		// ユーザー登録
		users.POST("", middleware.RequireRole(s.verifier, middleware.RoleAdmin), s.handleCreate())
		// ユーザー一覧取得
		users.GET("", middleware.RequireRole(s.verifier, middleware.RoleAdmin, middleware.RoleAnalyst), s.handleList())
		// ユーザー詳細取得
		users.GET("/:id", middleware.RequireRole(s.verifier, middleware.RoleAdmin, middleware.RoleAnalyst, middleware.RoleViewer), s.handleGetByID())
	}
}

// createUserRequest はユーザー登録リクエストのJSON構造。
type createUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Role     string `json:"role" binding:"required"`
	FullName string `json:"full_name" binding:"required"`
}

// userResponse はユーザーのJSONレスポンス構造。
type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	FullName  string    `json:"full_name"`
	CreatedAt time.Time `json:"created_at"`
}

func toResponse(u userdb.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Role:      u.Role,
		FullName:  u.FullName,
		CreatedAt: u.CreatedAt.UTC(),
	}
}

// handleCreate はユーザーを登録するハンドラを返す。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.AbortWithError(c, http.StatusBadRequest, middleware.CodeBadRequest, "リクエストが不正です: "+err.Error())
			return
		}
		role := middleware.ParseRole(req.Role)
		if role == middleware.RoleNone {
			middleware.AbortWithError(c, http.StatusBadRequest, middleware.CodeBadRequest, "roleはadmin / analyst / viewerのいずれかです")
			return
		}

		u := userdb.User{
			ID:        uuid.NewString(),
			Email:     req.Email,
			Role:      string(role),
			FullName:  req.FullName,
			CreatedAt: s.now().UTC(),
		}
		if err := s.queries.CreateUser(c.Request.Context(), userdb.CreateUserParams(u)); err != nil {
			slog.Error("user_create_failed",
				slog.String("request_id", middleware.GetRequestID(c)),
				slog.String("error", err.Error()),
			)
			middleware.AbortWithError(c, http.StatusInternalServerError, middleware.CodeInternal, "ユーザーの登録に失敗しました")
			return
		}

		c.JSON(http.StatusCreated, toResponse(u))
	}
}

// handleList はユーザー一覧を返すハンドラを返す。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := s.queries.ListUsers(c.Request.Context())
		if err != nil {
			slog.Error("user_list_failed", slog.String("error", err.Error()))
			middleware.AbortWithError(c, http.StatusInternalServerError, middleware.CodeInternal, "ユーザー一覧の取得に失敗しました")
			return
		}
		resp := make([]userResponse, 0, len(users))
		for _, u := range users {
			resp = append(resp, toResponse(u))
		}
		c.JSON(http.StatusOK, resp)
	}
}

// handleGetByID はユーザー詳細を返すハンドラを返す。
func (s *Server) handleGetByID() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := s.queries.GetUser(c.Request.Context(), c.Param("id"))
		if errors.Is(err, userdb.ErrNotFound) {
			middleware.AbortWithError(c, http.StatusNotFound, middleware.CodeNotFound, "ユーザーが見つかりません")
			return
		}
		if err != nil {
			slog.Error("user_get_failed", slog.String("error", err.Error()))
			middleware.AbortWithError(c, http.StatusInternalServerError, middleware.CodeInternal, "ユーザーの取得に失敗しました")
			return
		}
		c.JSON(http.StatusOK, toResponse(u))
	}
}
