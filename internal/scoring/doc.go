// Package scoring はスコアリングサービスの内部実装を提供する。
//
// ケースのリスクスコアを算出する擬似的なエンジンで、一定の処理時間と
// 設定された確率での一時的な失敗（503）を再現する。算出結果はscore_updatedイベントとして記録する。
package scoring
