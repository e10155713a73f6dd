// Package auth は認証サービスの内部実装を提供する。
//
// デモ用アカウントの資格情報を検証し、ロールを含むアクセストークンを発行する。
// 発行したトークンは各サービスが共有シークレットで個別に検証する。
package auth
