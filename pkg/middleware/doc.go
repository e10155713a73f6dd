// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// JWTの検証とロールによる認可、相関ID（X-Request-Id）の付与、リクエストログ、
// パニックリカバリ、CORS設定、レート制限など、全サービスで共通して使用するミドルウェアを含む。
package middleware
