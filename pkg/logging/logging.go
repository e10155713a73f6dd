// Package logging は全サービス共通の構造化ログ（JSON）を設定する。
//
// slog.SetDefault を通じて標準の log パッケージの出力も同じハンドラに流すため、
// 各サービスの log.Printf もJSON行として出力される。
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Setup はサービス名とログレベルを指定してJSONロガーを構成し、デフォルトロガーに設定する。
// levelには "DEBUG" / "INFO" / "WARN" / "ERROR" を指定する（大文字小文字は区別しない）。
func Setup(serviceName, level string) *slog.Logger {
	return SetupWithWriter(os.Stdout, serviceName, level)
}

// SetupWithWriter は出力先を指定してロガーを構成する。テストから出力を捕捉するために使用する。
func SetupWithWriter(w io.Writer, serviceName, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.TimeKey:
				a.Key = "timestamp"
			case slog.MessageKey:
				a.Key = "message"
			}
			return a
		},
	})
	logger := slog.New(handler).With(slog.String("service_name", serviceName))
	slog.SetDefault(logger)
	return logger
}

// ParseLevel はログレベル文字列をslog.Levelに変換する。不明な値はINFOとして扱う。
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR", "CRITICAL":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
