package gateway

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/narendersurabhi/microservices-ml-platform/pkg/config"
)

var (
	// ErrRouteNotFound はパスに一致するルートが存在しないことを示す。
	ErrRouteNotFound = errors.New("route not found")
	// ErrUpstreamTimeout は上流サービスが制限時間内に応答しなかったことを示す。
	ErrUpstreamTimeout = errors.New("upstream timeout")
)

// Route はパスのプレフィックスと転送先のベースURLの対応。
type Route struct {
	// Prefix はルートのパスプレフィックス（例: /v1/cases）。
	Prefix string `yaml:"prefix"`
	// Upstream は転送先サービスのベースURL。
	Upstream string `yaml:"upstream"`
}

// RouteTable は宣言順を保持したルートの一覧。起動後は変更しない。
type RouteTable struct {
	routes []Route
}

// routesFile はROUTES_FILEのYAML構造。
type routesFile struct {
	Routes []Route `yaml:"routes"`
}

// NewRouteTable はルートを検証してRouteTableを生成する。
func NewRouteTable(routes []Route) (*RouteTable, error) {
	if len(routes) == 0 {
		return nil, errors.New("ルートが1件も定義されていません")
	}
	table := &RouteTable{routes: make([]Route, 0, len(routes))}
	for _, r := range routes {
		if !strings.HasPrefix(r.Prefix, "/") {
			return nil, fmt.Errorf("ルートのプレフィックスは / で始まる必要があります: %q", r.Prefix)
		}
		u, err := url.Parse(r.Upstream)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("ルート %s の転送先URLが不正です: %q", r.Prefix, r.Upstream)
		}
		table.routes = append(table.routes, Route{
			Prefix:   strings.TrimSuffix(r.Prefix, "/"),
			Upstream: strings.TrimSuffix(r.Upstream, "/"),
		})
	}
	return table, nil
}

// DefaultRoutes は*_SERVICE_URLから組み立てる標準のルート。
func DefaultRoutes(urls config.ServiceURLs) []Route {
	return []Route{
		{Prefix: "/v1/auth", Upstream: urls.Auth},
		{Prefix: "/v1/users", Upstream: urls.User},
		{Prefix: "/v1/cases", Upstream: urls.Case},
		{Prefix: "/v2/cases", Upstream: urls.Case},
		{Prefix: "/v1/scoring", Upstream: urls.Scoring},
		{Prefix: "/v1/audit", Upstream: urls.Audit},
	}
}

// LoadRoutes はYAMLファイルからルートを読み込む。
//
//	routes:
//	  - prefix: /v1/cases
//	    upstream: http://case-service:8083
func LoadRoutes(path string) (*RouteTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ルート定義ファイルの読み込みに失敗: %w", err)
	}
	var f routesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("ルート定義ファイルの解析に失敗: %w", err)
	}
	return NewRouteTable(f.Routes)
}

// Match はパスに一致するルートのうち最も長いプレフィックスを持つものを返す。
// 同じ長さの場合は先に宣言されたルートを優先する。
func (t *RouteTable) Match(path string) (Route, error) {
	best := -1
	for i, r := range t.routes {
		if !hasPathPrefix(path, r.Prefix) {
			continue
		}
		if best < 0 || len(r.Prefix) > len(t.routes[best].Prefix) {
			best = i
		}
	}
	if best < 0 {
		return Route{}, fmt.Errorf("%w: %s", ErrRouteNotFound, path)
	}
	return t.routes[best], nil
}

// Routes は宣言順のルートのコピーを返す。
func (t *RouteTable) Routes() []Route {
	out := make([]Route, len(t.routes))
	copy(out, t.routes)
	return out
}

// hasPathPrefix はパスセグメントの境界でプレフィックスに一致するかを判定する。
// /v1/cases は /v1/cases と /v1/cases/123 に一致し、/v1/casesx には一致しない。
func hasPathPrefix(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/' || prefix == ""
}
