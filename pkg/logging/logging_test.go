package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

// TestParseLevel はログレベル文字列の変換を検証する。
func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  slog.Level
	}{
		{name: "DEBUGを解釈できること", input: "debug", want: slog.LevelDebug},
		{name: "WARNINGをWARNとして解釈できること", input: "WARNING", want: slog.LevelWarn},
		{name: "ERRORを解釈できること", input: "ERROR", want: slog.LevelError},
		{name: "空文字列はINFOになること", input: "", want: slog.LevelInfo},
		{name: "不明な値はINFOになること", input: "verbose", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// TestSetupWithWriter はJSON形式でサービス名付きのログが出力されることを検証する。
// デフォルトロガーを書き換えるため並列実行しない。
func TestSetupWithWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWithWriter(&buf, "case-service", "INFO")

	logger.Info("request_started", slog.String("request_id", "req-1"))
	logger.Debug("抑止されるべきログ")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("ログ行のJSONデコードに失敗: %v (raw=%s)", err, buf.String())
	}
	if entry["message"] != "request_started" {
		t.Errorf("message = %v, want %q", entry["message"], "request_started")
	}
	if entry["service_name"] != "case-service" {
		t.Errorf("service_name = %v, want %q", entry["service_name"], "case-service")
	}
	if entry["request_id"] != "req-1" {
		t.Errorf("request_id = %v, want %q", entry["request_id"], "req-1")
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("timestampキーが存在しない")
	}
}
