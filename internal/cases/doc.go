// Package cases はケースサービスを提供する。
//
// ケースの作成はOrchestratorが担当し、scoringサービスの呼び出しに失敗しても
// ケースをPENDING_SCOREとして登録したうえで201を返す。
// Idempotency-Keyヘッダーを指定した作成リクエストは一度だけ受け付ける。
package cases
