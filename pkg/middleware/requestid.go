package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/narendersurabhi/microservices-ml-platform/pkg/httpclient"
)

// contextKeyRequestID はGinコンテキストに相関IDを格納するためのキー。
const contextKeyRequestID = "request_id"

// RequestID は相関IDを確定させるGinミドルウェアを返す。
// クライアントがX-Request-Idを指定していればそれを使い、なければUUIDを生成する。
// 相関IDはレスポンスヘッダーとリクエストのコンテキストに設定され、後続のサービス間呼び出しに伝播する。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(httpclient.HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
			c.Request.Header.Set(httpclient.HeaderRequestID, id)
		}
		c.Set(contextKeyRequestID, id)
		c.Request = c.Request.WithContext(httpclient.WithRequestID(c.Request.Context(), id))
		// ハンドラより先に設定し、パニック時のレスポンスにも含める
		c.Header(httpclient.HeaderRequestID, id)
		c.Next()
	}
}

// GetRequestID はGinコンテキストから相関IDを取得する。
func GetRequestID(c *gin.Context) string {
	return c.GetString(contextKeyRequestID)
}
