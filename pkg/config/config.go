// Package config は環境変数からサービスの実行時設定を読み込む。
//
// viperのAutomaticEnvを使用し、キー名を大文字にした環境変数（例: jwt_secret → JWT_SECRET）
// を参照する。未設定の項目には開発用のデフォルト値を適用する。
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config は全サービス共通の実行時設定。
// サービスごとに使用しない項目も含むが、読み込みは一箇所にまとめる。
type Config struct {
	// ServiceName はログに付与するサービス名。
	ServiceName string
	// Port はHTTPサーバーのリッスンポート。
	Port string
	// LogLevel はログレベル（DEBUG / INFO / WARN / ERROR）。
	LogLevel string

	// JWTSecret はJWT署名・検証用の秘密鍵。
	JWTSecret string
	// JWTAlgorithm はJWT署名アルゴリズム（HS256 / HS384 / HS512）。
	JWTAlgorithm string
	// JWTExpire はアクセストークンの有効期間。
	JWTExpire time.Duration

	// DatabaseURL はリレーショナルストアの接続先。
	DatabaseURL string
	// RedisURL はイベントログ（Redis Streams）の接続先。空の場合はインメモリのログを使用する。
	RedisURL string

	// InternalToken はサービス間呼び出しで使用する共有シークレット（X-Internal-Token）。
	InternalToken string
	// ServiceToken はscoringサービスがcase/userサービスを参照する際のBearerトークン。
	ServiceToken string
	// ScoringServiceToken はcaseサービスがscoringサービスを呼び出す際のBearerトークン。
	ScoringServiceToken string

	// Services は内部サービスのURL。
	Services ServiceURLs
	// RoutesFile はGatewayのルーティング定義（YAML）のパス。空の場合は環境変数から構築する。
	RoutesFile string
	// CORSAllowedOrigins はCORSを許可するオリジン。
	CORSAllowedOrigins []string
	// TrustedProxies はX-Forwarded-Forを信頼するプロキシのアドレス（CIDR可）。
	// 空の場合は接続元アドレスだけでクライアントを識別する。
	TrustedProxies []string

	// RateLimit はGatewayのレート制限設定。
	RateLimit RateLimitConfig
	// UpstreamTimeout はGatewayから上流サービスへの呼び出しのタイムアウト。
	UpstreamTimeout time.Duration

	// Scoring はcaseサービスからscoringサービスへの呼び出しのレジリエンス設定。
	Scoring ScoringCallConfig
	// ScoringFailureRate はscoringサービスが一時的な失敗（503）を返す確率。
	ScoringFailureRate float64
	// ScoringLatencyMin / ScoringLatencyMax はscoringサービスの擬似的な処理時間の範囲。
	ScoringLatencyMin time.Duration
	ScoringLatencyMax time.Duration

	// Events はイベントログの設定。
	Events EventConfig
}

// ServiceURLs は内部サービスのベースURL。
type ServiceURLs struct {
	Auth    string
	User    string
	Case    string
	Scoring string
	Audit   string
}

// RateLimitConfig はレート制限の設定。
type RateLimitConfig struct {
	// Global は全リクエストに適用するウィンドウあたりの上限。
	Global int
	// Proxy はプロキシルートに適用するウィンドウあたりの上限。
	Proxy int
	// Window はカウンタのウィンドウ幅。
	Window time.Duration
	// Strategy は "fixed" または "sliding"。
	Strategy string
	// Backend は "memory" または "redis"。
	Backend string
}

// ScoringCallConfig はscoring呼び出しのレジリエンス設定。
type ScoringCallConfig struct {
	// Timeout は1回の試行のタイムアウト。
	Timeout time.Duration
	// MaxAttempts は最大試行回数。
	MaxAttempts int
	// Bulkhead は同時実行数の上限。
	Bulkhead int
	// FailureThreshold はサーキットブレーカーが開くまでの連続失敗回数。
	FailureThreshold int
	// Cooldown はサーキットブレーカーが開いている時間。
	Cooldown time.Duration
}

// EventConfig はイベントログの設定。
type EventConfig struct {
	// Stream はドメインイベントを追記するストリーム名。
	Stream string
	// Group は監査コンシューマのグループ名。
	Group string
	// Consumer は監査コンシューマの名前。
	Consumer string
	// PollInterval はコンシューマのポーリング間隔。
	PollInterval time.Duration
}

// defaultPorts はサービスごとのデフォルトポート。
var defaultPorts = map[string]string{
	"gateway": "8080",
	"auth":    "8081",
	"user":    "8082",
	"case":    "8083",
	"scoring": "8084",
	"audit":   "8085",
}

// SetDefaults はviperにデフォルト値を登録する。
func SetDefaults(v *viper.Viper, service string) {
	port, ok := defaultPorts[service]
	if !ok {
		port = "8080"
	}
	v.SetDefault("service_name", service+"-service")
	v.SetDefault("port", port)
	v.SetDefault("log_level", "INFO")

	v.SetDefault("jwt_secret", "dev-secret")
	v.SetDefault("jwt_algorithm", "HS256")
	v.SetDefault("jwt_expire_minutes", 15)

	v.SetDefault("database_url", fmt.Sprintf("sqlite:///data/%s.db", service))
	v.SetDefault("redis_url", "")

	v.SetDefault("internal_token", "internal-dev-token")
	v.SetDefault("service_token", "")
	v.SetDefault("scoring_service_token", "")

	v.SetDefault("auth_service_url", "http://localhost:8081")
	v.SetDefault("user_service_url", "http://localhost:8082")
	v.SetDefault("case_service_url", "http://localhost:8083")
	v.SetDefault("scoring_service_url", "http://localhost:8084")
	v.SetDefault("audit_service_url", "http://localhost:8085")
	v.SetDefault("routes_file", "")
	v.SetDefault("cors_allowed_origins", "http://localhost:3000")
	v.SetDefault("trusted_proxies", "")

	v.SetDefault("rate_limit_global", 60)
	v.SetDefault("rate_limit_proxy", 30)
	v.SetDefault("rate_limit_window", "1m")
	v.SetDefault("rate_limit_strategy", "fixed")
	v.SetDefault("rate_limit_backend", "memory")
	v.SetDefault("upstream_timeout", "10s")

	v.SetDefault("scoring_timeout", "3s")
	v.SetDefault("scoring_max_attempts", 3)
	v.SetDefault("scoring_bulkhead", 5)
	v.SetDefault("breaker_failure_threshold", 3)
	v.SetDefault("breaker_cooldown", "30s")
	v.SetDefault("scoring_failure_rate", 0.2)
	v.SetDefault("scoring_latency_min", "300ms")
	v.SetDefault("scoring_latency_max", "1200ms")

	v.SetDefault("event_stream", "case-events")
	v.SetDefault("audit_group", "audit-consumers")
	v.SetDefault("audit_consumer", "audit-service")
	v.SetDefault("audit_poll_interval", "100ms")
}

// Load はviperから設定を読み込み、検証済みのConfigを返す。
func Load(v *viper.Viper, service string) (Config, error) {
	SetDefaults(v, service)
	v.AutomaticEnv()

	cfg := Config{
		ServiceName: v.GetString("service_name"),
		Port:        v.GetString("port"),
		LogLevel:    v.GetString("log_level"),

		JWTSecret:    v.GetString("jwt_secret"),
		JWTAlgorithm: strings.ToUpper(v.GetString("jwt_algorithm")),
		JWTExpire:    time.Duration(v.GetInt("jwt_expire_minutes")) * time.Minute,

		DatabaseURL: v.GetString("database_url"),
		RedisURL:    v.GetString("redis_url"),

		InternalToken:       v.GetString("internal_token"),
		ServiceToken:        v.GetString("service_token"),
		ScoringServiceToken: v.GetString("scoring_service_token"),

		Services: ServiceURLs{
			Auth:    v.GetString("auth_service_url"),
			User:    v.GetString("user_service_url"),
			Case:    v.GetString("case_service_url"),
			Scoring: v.GetString("scoring_service_url"),
			Audit:   v.GetString("audit_service_url"),
		},
		RoutesFile:         v.GetString("routes_file"),
		CORSAllowedOrigins: splitList(v.GetString("cors_allowed_origins")),
		TrustedProxies:     splitList(v.GetString("trusted_proxies")),

		RateLimit: RateLimitConfig{
			Global:   v.GetInt("rate_limit_global"),
			Proxy:    v.GetInt("rate_limit_proxy"),
			Window:   v.GetDuration("rate_limit_window"),
			Strategy: strings.ToLower(v.GetString("rate_limit_strategy")),
			Backend:  strings.ToLower(v.GetString("rate_limit_backend")),
		},
		UpstreamTimeout: v.GetDuration("upstream_timeout"),

		Scoring: ScoringCallConfig{
			Timeout:          v.GetDuration("scoring_timeout"),
			MaxAttempts:      v.GetInt("scoring_max_attempts"),
			Bulkhead:         v.GetInt("scoring_bulkhead"),
			FailureThreshold: v.GetInt("breaker_failure_threshold"),
			Cooldown:         v.GetDuration("breaker_cooldown"),
		},
		ScoringFailureRate: v.GetFloat64("scoring_failure_rate"),
		ScoringLatencyMin:  v.GetDuration("scoring_latency_min"),
		ScoringLatencyMax:  v.GetDuration("scoring_latency_max"),

		Events: EventConfig{
			Stream:       v.GetString("event_stream"),
			Group:        v.GetString("audit_group"),
			Consumer:     v.GetString("audit_consumer"),
			PollInterval: v.GetDuration("audit_poll_interval"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate は設定値の整合性を検証する。
func (c Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.JWTAlgorithm {
	case "HS256", "HS384", "HS512":
	default:
		return fmt.Errorf("JWT_ALGORITHM %q is not supported", c.JWTAlgorithm)
	}
	if c.JWTExpire <= 0 {
		return errors.New("JWT_EXPIRE_MINUTES must be positive")
	}
	if c.RateLimit.Global <= 0 || c.RateLimit.Proxy <= 0 {
		return errors.New("RATE_LIMIT_GLOBAL and RATE_LIMIT_PROXY must be positive")
	}
	if c.RateLimit.Window <= 0 {
		return errors.New("RATE_LIMIT_WINDOW must be positive")
	}
	if c.RateLimit.Strategy != "fixed" && c.RateLimit.Strategy != "sliding" {
		return fmt.Errorf("RATE_LIMIT_STRATEGY %q must be fixed or sliding", c.RateLimit.Strategy)
	}
	if c.RateLimit.Backend != "memory" && c.RateLimit.Backend != "redis" {
		return fmt.Errorf("RATE_LIMIT_BACKEND %q must be memory or redis", c.RateLimit.Backend)
	}
	if c.Scoring.MaxAttempts <= 0 || c.Scoring.Bulkhead <= 0 || c.Scoring.FailureThreshold <= 0 {
		return errors.New("SCORING_MAX_ATTEMPTS, SCORING_BULKHEAD and BREAKER_FAILURE_THRESHOLD must be positive")
	}
	if c.ScoringFailureRate < 0 || c.ScoringFailureRate > 1 {
		return errors.New("SCORING_FAILURE_RATE must be between 0 and 1")
	}
	if c.ScoringLatencyMin < 0 || c.ScoringLatencyMax < c.ScoringLatencyMin {
		return errors.New("SCORING_LATENCY_MIN must be non-negative and not greater than SCORING_LATENCY_MAX")
	}
	return nil
}

// Addr はリッスンアドレスを返す。
func (c Config) Addr() string {
	return ":" + c.Port
}

// splitList はカンマ区切りの文字列を空要素を除いたスライスに変換する。
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
