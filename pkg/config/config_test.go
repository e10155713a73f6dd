package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

// TestLoad はデフォルト値と上書きされた値の読み込みを検証する。
func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("デフォルト値が適用されること", func(t *testing.T) {
		t.Parallel()

		cfg, err := Load(viper.New(), "case")
		if err != nil {
			t.Fatalf("Load()でエラーが発生: %v", err)
		}
		if cfg.ServiceName != "case-service" {
			t.Errorf("ServiceName = %q, want %q", cfg.ServiceName, "case-service")
		}
		if cfg.Port != "8083" {
			t.Errorf("Port = %q, want %q", cfg.Port, "8083")
		}
		if cfg.JWTExpire != 15*time.Minute {
			t.Errorf("JWTExpire = %v, want 15m", cfg.JWTExpire)
		}
		if cfg.Scoring.MaxAttempts != 3 || cfg.Scoring.Bulkhead != 5 || cfg.Scoring.FailureThreshold != 3 {
			t.Errorf("Scoring = %+v, want attempts=3 bulkhead=5 threshold=3", cfg.Scoring)
		}
		if cfg.Scoring.Cooldown != 30*time.Second {
			t.Errorf("Cooldown = %v, want 30s", cfg.Scoring.Cooldown)
		}
		if cfg.RateLimit.Global != 60 || cfg.RateLimit.Proxy != 30 || cfg.RateLimit.Window != time.Minute {
			t.Errorf("RateLimit = %+v, want 60/30 per minute", cfg.RateLimit)
		}
		if cfg.Events.Stream != "case-events" || cfg.Events.Group != "audit-consumers" {
			t.Errorf("Events = %+v", cfg.Events)
		}
		if cfg.Addr() != ":8083" {
			t.Errorf("Addr() = %q, want %q", cfg.Addr(), ":8083")
		}
	})

	t.Run("明示的に設定した値が優先されること", func(t *testing.T) {
		t.Parallel()

		v := viper.New()
		v.Set("jwt_algorithm", "hs512")
		v.Set("rate_limit_proxy", 5)
		v.Set("cors_allowed_origins", "http://a.example, ,http://b.example")

		cfg, err := Load(v, "gateway")
		if err != nil {
			t.Fatalf("Load()でエラーが発生: %v", err)
		}
		if cfg.JWTAlgorithm != "HS512" {
			t.Errorf("JWTAlgorithm = %q, want %q", cfg.JWTAlgorithm, "HS512")
		}
		if cfg.RateLimit.Proxy != 5 {
			t.Errorf("RateLimit.Proxy = %d, want 5", cfg.RateLimit.Proxy)
		}
		if len(cfg.CORSAllowedOrigins) != 2 {
			t.Errorf("CORSAllowedOrigins = %v, want 2 entries", cfg.CORSAllowedOrigins)
		}
	})

	t.Run("サポート外のアルゴリズムはエラーになること", func(t *testing.T) {
		t.Parallel()

		v := viper.New()
		v.Set("jwt_algorithm", "RS256")
		if _, err := Load(v, "auth"); err == nil {
			t.Fatal("Load()がエラーを返すべきだが、nilが返った")
		}
	})

	t.Run("不正なレート制限戦略はエラーになること", func(t *testing.T) {
		t.Parallel()

		v := viper.New()
		v.Set("rate_limit_strategy", "token-bucket")
		if _, err := Load(v, "gateway"); err == nil {
			t.Fatal("Load()がエラーを返すべきだが、nilが返った")
		}
	})
}
