package scoring

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/narendersurabhi/microservices-ml-platform/pkg/config"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/event"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/eventlog"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/httpclient"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/httpserver"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/middleware"
)

// lookupTimeout はケース・ユーザーの参照に許す時間。
const lookupTimeout = 2 * time.Second

// Server はスコアリングサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// addr はサーバーのリッスンアドレス。
	addr string
	// verifier はアクセストークンを検証する。
	verifier *middleware.TokenVerifier
	// internalToken はサービス間呼び出しの共有シークレット。
	internalToken string
	// emitter はドメインイベントを記録する。
	emitter *eventlog.Emitter
	// caseClient / userClient はSERVICE_TOKENが設定されている場合のみ使用する。
	caseClient *httpclient.Client
	userClient *httpclient.Client
	// failureRate は503を返す確率。
	failureRate float64
	// latencyMin / latencyMax は擬似的な処理時間の範囲。
	latencyMin time.Duration
	latencyMax time.Duration
	// random は[0, 1)の乱数を返す。
	random func() float64
	// now は現在時刻を返す。
	now func() time.Time
	// serviceName はヘルスチェックで返すサービス名。
	serviceName string
}

// NewServer は新しいスコアリングサーバーを生成する。
func NewServer(cfg config.Config, log eventlog.Log) *Server {
	s := &Server{
		router:        gin.New(),
		addr:          cfg.Addr(),
		verifier:      middleware.NewTokenVerifier(cfg.JWTSecret, cfg.JWTAlgorithm),
		internalToken: cfg.InternalToken,
		emitter:       eventlog.NewEmitter(log, cfg.Events.Stream),
		failureRate:   cfg.ScoringFailureRate,
		latencyMin:    cfg.ScoringLatencyMin,
		latencyMax:    cfg.ScoringLatencyMax,
		random:        rand.Float64,
		now:           time.Now,
		serviceName:   cfg.ServiceName,
	}
	if cfg.ServiceToken != "" {
		s.caseClient = httpclient.New(cfg.Services.Case,
			httpclient.WithTimeout(lookupTimeout), httpclient.WithBearerToken(cfg.ServiceToken))
		s.userClient = httpclient.New(cfg.Services.User,
			httpclient.WithTimeout(lookupTimeout), httpclient.WithBearerToken(cfg.ServiceToken))
	}
	s.setupRoutes()

	return s
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

	scoring := s.router.Group("/v1/scoring")
	{
		scoring.GET("/health", health)
		// スコア算出（内部トークンまたはBearerトークン）
		scoring.POST("/:case_id", middleware.InternalOrBearer(s.verifier, s.internalToken), s.handleScore())
	}
}

// scoreResponse はスコア算出のレスポンス。
type scoreResponse struct {
	CaseID    string    `json:"case_id"`
	Score     float64   `json:"score"`
	UpdatedAt time.Time `json:"updated_at"`
}

// handleScore はケースのスコアを算出するハンドラを返す。
func (s *Server) handleScore() gin.HandlerFunc {
	return func(c *gin.Context) {
		caseID := c.Param("case_id")
		if _, err := uuid.Parse(caseID); err != nil {
			middleware.AbortWithError(c, http.StatusBadRequest, middleware.CodeBadRequest, "case_idはUUIDである必要があります")
			return
		}
		ctx := c.Request.Context()

		if err := s.simulateLatency(ctx); err != nil {
			middleware.AbortWithError(c, http.StatusServiceUnavailable, middleware.CodeRemoteUnavailable, "スコア算出が中断されました")
			return
		}
		if s.random() < s.failureRate {
			slog.Warn("scoring_unavailable",
				slog.String("request_id", middleware.GetRequestID(c)),
				slog.String("case_id", caseID),
			)
			middleware.AbortWithError(c, http.StatusServiceUnavailable, middleware.CodeRemoteUnavailable, "スコアリングエンジンが利用できません")
			return
		}

		owner := s.lookupOwner(ctx, caseID)
		score := math.Round((0.1+s.random()*0.89)*10000) / 10000
		updatedAt := s.now().UTC()

		s.emitter.Emit(ctx, event.TypeScoreUpdated, event.ScoreUpdatedPayload{
			CaseID:         caseID,
			Score:          score,
			Owner:          owner,
			IdempotencyKey: c.GetHeader(httpclient.HeaderIdempotencyKey),
			UpdatedAt:      &updatedAt,
		})

		c.JSON(http.StatusOK, scoreResponse{CaseID: caseID, Score: score, UpdatedAt: updatedAt})
	}
}

// simulateLatency は[latencyMin, latencyMax]の範囲で待機する。
func (s *Server) simulateLatency(ctx context.Context) error {
	d := s.latencyMin
	if spread := s.latencyMax - s.latencyMin; spread > 0 {
		d += time.Duration(s.random() * float64(spread))
	}
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// caseOwner はケース参照のレスポンスのうち所有者IDだけを読む。
type caseOwner struct {
	OwnerID string `json:"owner_id"`
}

// lookupOwner はケースの所有者情報を取得する。参照できない場合はnilを返す。
func (s *Server) lookupOwner(ctx context.Context, caseID string) json.RawMessage {
	if s.caseClient == nil || s.userClient == nil {
		return nil
	}
	var c caseOwner
	if err := s.caseClient.GetJSON(ctx, "/v1/cases/"+caseID, &c); err != nil || c.OwnerID == "" {
		if err != nil {
			slog.Debug("case_lookup_failed", slog.String("case_id", caseID), slog.String("error", err.Error()))
		}
		return nil
	}
	var owner json.RawMessage
	if err := s.userClient.GetJSON(ctx, "/v1/users/"+c.OwnerID, &owner); err != nil {
		slog.Debug("owner_lookup_failed", slog.String("owner_id", c.OwnerID), slog.String("error", err.Error()))
		return nil
	}
	return owner
}
