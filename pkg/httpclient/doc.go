// Package httpclient はサービス間のHTTP通信を行うクライアントを提供する。
//
// caseサービスからscoringサービスへのスコア要求、scoringサービスからcase/userサービスへの
// 参照など、サービス間の通信パターンを統一する。
// コンテキストに設定したリクエストIDと冪等性キーはヘッダーとして伝播する。
package httpclient
