package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	auditdb "github.com/narendersurabhi/microservices-ml-platform/internal/audit/db"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/config"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/database"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/eventlog"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/httpserver"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/middleware"
)

// Server は監査サービスのHTTPサーバーとイベントコンシューマ。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// addr はサーバーのリッスンアドレス。
	addr string
	// db はデータベース接続。
	db *database.DB
	// queries は監査イベントテーブルへのクエリ。
	queries *auditdb.Queries
	// consumer はケースイベントのストリームを読むコンシューマ。
	consumer *eventlog.Consumer
	// verifier はアクセストークンを検証する。
	verifier *middleware.TokenVerifier
	// serviceName はヘルスチェックで返すサービス名。
	serviceName string
}

// NewServer は新しい監査サーバーを生成する。
// データベースへの接続とマイグレーションを行う。コンシューマはRunまたはConsumerで開始する。
func NewServer(ctx context.Context, cfg config.Config, log eventlog.Log) (*Server, error) {
	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	queries := auditdb.New(db, db.Dialect)
	s := &Server{
		router:  gin.New(),
		addr:    cfg.Addr(),
		db:      db,
		queries: queries,
		consumer: &eventlog.Consumer{
			Log:      log,
			Stream:   cfg.Events.Stream,
			Group:    cfg.Events.Group,
			Name:     cfg.Events.Consumer,
			Handler:  NewRecorder(queries).Handle,
			Interval: cfg.Events.PollInterval,
		},
		verifier:    middleware.NewTokenVerifier(cfg.JWTSecret, cfg.JWTAlgorithm),
		serviceName: cfg.ServiceName,
	}
	s.setupRoutes()

	return s, nil
}

// Handler はHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Consumer はイベントコンシューマを返す。
func (s *Server) Consumer() *eventlog.Consumer {
	return s.consumer
}

// Run はHTTPサーバーとコンシューマを起動し、ctxがキャンセルされるまで待つ。
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("audit_consumer_started",
			slog.String("stream", s.consumer.Stream),
			slog.String("group", s.consumer.Group),
			slog.String("consumer", s.consumer.Name),
		)
		s.consumer.Run(gctx)
		slog.Info("audit_consumer_stopped")
		return nil
	})
	g.Go(func() error {
		return httpserver.Serve(gctx, s.addr, s.router)
	})
	return g.Wait()
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

	audit := s.router.Group("/v1/audit")
	{
		audit.GET("/health", health)
		// 監査イベント一覧取得
		audit.GET("", middleware.RequireRole(s.verifier, middleware.RoleAdmin, middleware.RoleAnalyst), s.handleList())
	}
}

// auditEventResponse は監査イベントのJSONレスポンス構造。
type auditEventResponse struct {
	ID        string          `json:"id"`
	EntryID   string          `json:"entry_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

func toResponse(e auditdb.AuditEvent) auditEventResponse {
	payload := json.RawMessage(e.Payload)
	if !json.Valid(payload) {
		// JSONとして読めない値は文字列として返す
		payload, _ = json.Marshal(e.Payload)
	}
	return auditEventResponse{
		ID:        e.ID,
		EntryID:   e.EntryID,
		EventType: e.EventType,
		Payload:   payload,
		CreatedAt: e.CreatedAt.UTC(),
	}
}

// handleList は監査イベント一覧を返すハンドラを返す。
// event_typeクエリパラメータで種類を絞り込める。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		events, err := s.queries.ListAuditEvents(c.Request.Context(), c.Query("event_type"))
		if err != nil {
			slog.Error("audit_list_failed",
				slog.String("request_id", middleware.GetRequestID(c)),
				slog.String("error", err.Error()),
			)
			middleware.AbortWithError(c, http.StatusInternalServerError, middleware.CodeInternal, "監査イベント一覧の取得に失敗しました")
			return
		}
		resp := make([]auditEventResponse, 0, len(events))
		for _, e := range events {
			resp = append(resp, toResponse(e))
		}
		c.JSON(http.StatusOK, resp)
	}
}
