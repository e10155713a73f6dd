package cases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	casedb "github.com/narendersurabhi/microservices-ml-platform/internal/cases/db"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/config"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/database"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/eventlog"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/httpclient"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/httpserver"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/idempotency"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/middleware"
)

// defaultPriority は優先度が指定されなかった場合の値。
const defaultPriority = "medium"

// Server はケースサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// addr はサーバーのリッスンアドレス。
	addr string
	// db はデータベース接続。
	db *database.DB
	// queries はケーステーブルへのクエリ。
	queries *casedb.Queries
	// orchestrator はケース作成の流れを管理する。
	orchestrator *Orchestrator
	// verifier はアクセストークンを検証する。
	verifier *middleware.TokenVerifier
	// serviceName はヘルスチェックで返すサービス名。
	serviceName string
}

// NewServer は新しいケースサーバーを生成する。
// データベースへの接続とマイグレーションを行う。
func NewServer(ctx context.Context, cfg config.Config, log eventlog.Log) (*Server, error) {
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
		db:          db,
		queries:     casedb.New(db, db.Dialect),
		verifier:    middleware.NewTokenVerifier(cfg.JWTSecret, cfg.JWTAlgorithm),
		serviceName: cfg.ServiceName,
	}
	s.orchestrator = NewOrchestrator(db,
		eventlog.NewEmitter(log, cfg.Events.Stream),
		newScoringCaller(cfg.Scoring),
		newScoringClient(cfg),
	)
	s.setupRoutes()

	return s, nil
}

// newScoringClient はscoringサービスへのクライアントを生成する。
// SCORING_SERVICE_TOKENが設定されていればBearerトークン、なければ内部トークンで認証する。
func newScoringClient(cfg config.Config) *httpclient.Client {
	auth := httpclient.WithHeader(httpclient.HeaderInternalToken, cfg.InternalToken)
	if cfg.ScoringServiceToken != "" {
		auth = httpclient.WithBearerToken(cfg.ScoringServiceToken)
	}
	return httpclient.New(cfg.Services.Scoring, httpclient.WithTimeout(cfg.Scoring.Timeout), auth)
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

	readers := middleware.RequireRole(s.verifier, middleware.RoleAdmin, middleware.RoleAnalyst, middleware.RoleViewer)

	v1 := s.router.Group("/v1/cases")
	{
		v1.GET("/health", health)
		// ケース作成
		v1.POST("", middleware.RequireRole(s.verifier, middleware.RoleAdmin, middleware.RoleAnalyst), s.handleCreate())
		// ケース一覧取得
		v1.GET("", readers, s.handleList())
		// ケース詳細取得
		v1.GET("/:id", readers, s.handleGetByID())
	}

	v2 := s.router.Group("/v2/cases")
	{
		v2.GET("/health", health)
		// ケース一覧取得（優先度付き）
		v2.GET("", readers, s.handleListV2())
	}
}

// createCaseRequest はケース作成リクエストのJSON構造。
type createCaseRequest struct {
	Title    string `json:"title" binding:"required"`
	OwnerID  string `json:"owner_id" binding:"required,uuid"`
	Priority string `json:"priority" binding:"omitempty,oneof=low medium high"`
}

// caseResponse はケースのJSONレスポンス構造（v1）。
type caseResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	OwnerID   string    `json:"owner_id"`
	Score     *float64  `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

// caseResponseV2 はv2のレスポンス構造。v1に優先度を加える。
type caseResponseV2 struct {
	caseResponse
	Priority string `json:"priority"`
}

func toResponse(c casedb.Case) caseResponse {
	resp := caseResponse{
		ID:        c.ID,
		Title:     c.Title,
		Status:    c.Status,
		OwnerID:   c.OwnerID,
		CreatedAt: c.CreatedAt.UTC(),
	}
	if c.Score.Valid {
		score := c.Score.Float64
		resp.Score = &score
	}
	return resp
}

// handleCreate はケースを作成するハンドラを返す。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createCaseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.AbortWithError(c, http.StatusBadRequest, middleware.CodeBadRequest, "リクエストが不正です: "+err.Error())
			return
		}
		if req.Priority == "" {
			req.Priority = defaultPriority
		}

		created, err := s.orchestrator.Create(c.Request.Context(), CreateInput{
			Title:          req.Title,
			OwnerID:        req.OwnerID,
			Priority:       req.Priority,
			IdempotencyKey: c.GetHeader(httpclient.HeaderIdempotencyKey),
			RequestID:      middleware.GetRequestID(c),
		})
		if errors.Is(err, idempotency.ErrDuplicateRequest) {
			middleware.AbortWithError(c, http.StatusConflict, middleware.CodeDuplicateRequest, "同じIdempotency-Keyのリクエストは既に受け付けています")
			return
		}
		if err != nil {
			slog.Error("case_create_failed",
				slog.String("request_id", middleware.GetRequestID(c)),
				slog.String("error", err.Error()),
			)
			middleware.AbortWithError(c, http.StatusInternalServerError, middleware.CodeInternal, "ケースの作成に失敗しました")
			return
		}

		c.JSON(http.StatusCreated, toResponse(created))
	}
}

// handleList はケース一覧を返すハンドラを返す。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		list, ok := s.listCases(c)
		if !ok {
			return
		}
		resp := make([]caseResponse, 0, len(list))
		for _, cs := range list {
			resp = append(resp, toResponse(cs))
		}
		c.JSON(http.StatusOK, resp)
	}
}

// handleListV2 は優先度付きのケース一覧を返すハンドラを返す。
func (s *Server) handleListV2() gin.HandlerFunc {
	return func(c *gin.Context) {
		list, ok := s.listCases(c)
		if !ok {
			return
		}
		resp := make([]caseResponseV2, 0, len(list))
		for _, cs := range list {
			resp = append(resp, caseResponseV2{caseResponse: toResponse(cs), Priority: cs.Priority})
		}
		c.JSON(http.StatusOK, resp)
	}
}

func (s *Server) listCases(c *gin.Context) ([]casedb.Case, bool) {
	list, err := s.queries.ListCases(c.Request.Context())
	if err != nil {
		slog.Error("case_list_failed", slog.String("error", err.Error()))
		middleware.AbortWithError(c, http.StatusInternalServerError, middleware.CodeInternal, "ケース一覧の取得に失敗しました")
		return nil, false
	}
	return list, true
}

// handleGetByID はケース詳細を返すハンドラを返す。
func (s *Server) handleGetByID() gin.HandlerFunc {
	return func(c *gin.Context) {
		cs, err := s.queries.GetCase(c.Request.Context(), c.Param("id"))
		if errors.Is(err, casedb.ErrNotFound) {
			middleware.AbortWithError(c, http.StatusNotFound, middleware.CodeNotFound, "ケースが見つかりません")
			return
		}
		if err != nil {
			slog.Error("case_get_failed", slog.String("error", err.Error()))
			middleware.AbortWithError(c, http.StatusInternalServerError, middleware.CodeInternal, "ケースの取得に失敗しました")
			return
		}
		c.JSON(http.StatusOK, toResponse(cs))
	}
}
