// Package user はユーザーサービスの内部実装を提供する。
//
// ユーザーの登録と参照を扱う。登録は管理者のみ、一覧は管理者と分析者、
// 個別の参照は全ロールに許可する。
package user
