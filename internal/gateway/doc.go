// Package gateway はエッジGatewayサービスの内部実装を提供する。
//
// 外部からアクセス可能な唯一のサービスであり、レート制限・トークン検証を通過した
// リクエストだけをパスのプレフィックスに対応する内部サービスへ転送する。
// 上流のレスポンスはステータスとボディをそのまま中継し、Content-Encodingだけを取り除く。
package gateway
