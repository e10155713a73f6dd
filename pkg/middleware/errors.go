package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"
)

var (
	// ErrInvalidCredential は認証情報が存在しない、署名が不正、形式が不正、または期限切れであることを示す。
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrInsufficientRole は認証済みだが必要なロールを持たないことを示す。
	ErrInsufficientRole = errors.New("insufficient role")
)

// エラーレスポンスのcodeフィールドに設定する分類名。
const (
	CodeInvalidCredential = "InvalidCredential"
	CodeInsufficientRole  = "InsufficientRole"
	CodeRateLimited       = "RateLimited"
	CodeRouteNotFound     = "RouteNotFound"
	CodeUpstreamTimeout   = "UpstreamTimeout"
	CodeUpstreamError     = "UpstreamError"
	CodeRemoteUnavailable = "RemoteUnavailable"
	CodeDuplicateRequest  = "DuplicateRequest"
	CodeNotFound          = "NotFound"
	CodeBadRequest        = "BadRequest"
	CodeInternal          = "InternalError"
)

// AbortWithError はエラーレスポンスを返してハンドラチェーンを中断する。
// レスポンスには相関IDを含める。
func AbortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorBody(c, code, message))
}

// ErrorBody は全サービス共通のエラーレスポンスボディを生成する。
func ErrorBody(c *gin.Context, code, message string) gin.H {
	body := gin.H{
		"error": message,
		"code":  code,
	}
	if id := GetRequestID(c); id != "" {
		body["request_id"] = id
	}
	return body
}
