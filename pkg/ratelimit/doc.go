// Package ratelimit はクライアント単位のリクエスト数制限を提供する。
//
// 固定ウィンドウとスライディングウィンドウのカウンタをプロセス内メモリで保持する。
// 複数インスタンスで共有する場合はRedisLimiterを使用する。
package ratelimit
