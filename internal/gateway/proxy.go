package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/narendersurabhi/microservices-ml-platform/pkg/httpclient"
	"github.com/narendersurabhi/microservices-ml-platform/pkg/middleware"
)

// hopHeaders は転送しない接続単位のヘッダー。
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Proxy はリクエストを上流サービスに転送する。
type Proxy struct {
	client  *http.Client
	timeout time.Duration
}

// NewProxy はProxyを生成する。timeoutは上流の応答を待つ最大時間。
func NewProxy(timeout time.Duration) *Proxy {
	return &Proxy{
		client: &http.Client{
			// リダイレクトはクライアントに中継する
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
		timeout: timeout,
	}
}

// Forward はリクエストをrouteの転送先に送り、レスポンスを中継する。
func (p *Proxy) Forward(c *gin.Context, route Route) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), p.timeout)
	defer cancel()

	target := route.Upstream + c.Request.URL.Path
	if c.Request.URL.RawQuery != "" {
		target += "?" + c.Request.URL.RawQuery
	}

	req, err := http.NewRequestWithContext(ctx, c.Request.Method, target, c.Request.Body)
	if err != nil {
		middleware.AbortWithError(c, http.StatusInternalServerError, middleware.CodeInternal, "プロキシリクエストの作成に失敗しました")
		return
	}
	req.ContentLength = c.Request.ContentLength
	copyRequestHeader(req.Header, c.Request.Header)
	if req.Header.Get(httpclient.HeaderRequestID) == "" {
		req.Header.Set(httpclient.HeaderRequestID, middleware.GetRequestID(c))
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.fail(c, target, err)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		p.fail(c, target, fmt.Errorf("レスポンスの読み取りに失敗: %w", err))
		return
	}

	header := c.Writer.Header()
	for k, vs := range resp.Header {
		if k == "Content-Encoding" || k == "Content-Length" || isHopHeader(k) {
			continue
		}
		header.Del(k)
		for _, v := range vs {
			header.Add(k, v)
		}
	}
	// 上流の応答に関わらずクライアントには確定した相関IDを返す
	header.Set(httpclient.HeaderRequestID, middleware.GetRequestID(c))

	c.Status(resp.StatusCode)
	if _, err := c.Writer.Write(body); err != nil {
		slog.Warn("proxy_write_failed",
			slog.String("request_id", middleware.GetRequestID(c)),
			slog.String("error", err.Error()),
		)
	}
}

// fail は転送の失敗を504または502に変換する。
func (p *Proxy) fail(c *gin.Context, target string, err error) {
	requestID := middleware.GetRequestID(c)
	if errors.Is(err, context.DeadlineExceeded) {
		slog.Error("upstream_timeout",
			slog.String("request_id", requestID),
			slog.String("url", target),
			slog.Duration("timeout", p.timeout),
		)
		middleware.AbortWithError(c, http.StatusGatewayTimeout, middleware.CodeUpstreamTimeout,
			fmt.Sprintf("%v: 上流サービスが応答しませんでした", ErrUpstreamTimeout))
		return
	}
	slog.Error("upstream_error",
		slog.String("request_id", requestID),
		slog.String("url", target),
		slog.String("error", err.Error()),
	)
	middleware.AbortWithError(c, http.StatusBadGateway, middleware.CodeUpstreamError, "内部サービスとの通信に失敗しました")
}

// copyRequestHeader はHost以外のヘッダーを転送用にコピーする。
// Accept-Encodingはトランスポートに任せ、中継するボディを復号済みにする。
func copyRequestHeader(dst, src http.Header) {
	for k, vs := range src {
		if k == "Host" || k == "Accept-Encoding" || k == "Content-Length" || isHopHeader(k) {
			continue
		}
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}

func isHopHeader(k string) bool {
	for _, h := range hopHeaders {
		if http.CanonicalHeaderKey(k) == h {
			return true
		}
	}
	return false
}
