// Package httpserver はHTTPサーバーの起動とグレースフルシャットダウンを扱う。
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// ShutdownTimeout はシャットダウン時に処理中のリクエストを待つ最大時間。
const ShutdownTimeout = 10 * time.Second

// Serve はaddrでhandlerを公開し、ctxがキャンセルされるとグレースフルシャットダウンする。
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("リッスンに失敗: %w", err)
	}
	return ServeListener(ctx, ln, handler)
}

// ServeListener は既存のリスナーでhandlerを公開する。
func ServeListener(ctx context.Context, ln net.Listener, handler http.Handler) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("HTTPサーバーを起動します: %s", ln.Addr())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTPサーバーが異常終了: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
		defer cancel()
		log.Printf("HTTPサーバーを停止します: %s", ln.Addr())
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("シャットダウンに失敗: %w", err)
		}
		return nil
	})
	return g.Wait()
}
