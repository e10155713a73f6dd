package httpclient

import "context"

// contextKey はコンテキストキーの型。
type contextKey string

const (
	// contextKeyRequestID はコンテキストに相関IDを格納するためのキー。
	contextKeyRequestID contextKey = "request_id"
	// contextKeyIdempotencyKey はコンテキストに冪等性キーを格納するためのキー。
	contextKeyIdempotencyKey contextKey = "idempotency_key"
)

// WithRequestID はコンテキストに相関IDを設定する。
// サービス間通信時にX-Request-Idヘッダーとして伝播される。
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, id)
}

// RequestIDFrom はコンテキストから相関IDを取得する。未設定の場合は空文字列。
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyRequestID).(string)
	return id
}

// WithIdempotencyKey はコンテキストに冪等性キーを設定する。
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, contextKeyIdempotencyKey, key)
}

// IdempotencyKeyFrom はコンテキストから冪等性キーを取得する。未設定の場合は空文字列。
func IdempotencyKeyFrom(ctx context.Context) string {
	key, _ := ctx.Value(contextKeyIdempotencyKey).(string)
	return key
}
