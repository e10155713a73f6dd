// Package resilience はサービス間呼び出しを保護するサーキットブレーカー、リトライ、バルクヘッドを提供する。
//
// Callerはこれらを次の順に合成する。
//
//  1. サーキットブレーカーの確認（OPENならI/Oもスロット確保もせず即座に失敗）
//  2. バルクヘッドへの入場（上限に達していれば空くまで待つ）
//  3. 試行ごとのタイムアウトとジッター付き指数バックオフによるリトライ
//
// 状態はプロセス内で共有され、排他制御される。
package resilience
