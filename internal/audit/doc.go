// Package audit は監査サービスを提供する。
//
// コンシューマグループの一員としてケースイベントのストリームを読み、
// 受け取ったイベントをそのまま監査ログとして永続化する。
// 記録後にACKするため、ACK前に停止した場合は再起動後に同じイベントが再配信され、
// 重複した行として記録される。
package audit
