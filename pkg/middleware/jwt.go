package middleware

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/narendersurabhi/microservices-ml-platform/pkg/httpclient"
)

// Role はユーザーのロール。
type Role string

const (
	// RoleNone はロールが存在しない、または不明なことを示す。どのロール集合にも含まれない。
	RoleNone Role = ""
	// RoleAdmin は管理者。
	RoleAdmin Role = "admin"
	// RoleAnalyst はケースを作成・参照できる分析者。
	RoleAnalyst Role = "analyst"
	// RoleViewer は参照のみ可能な閲覧者。
	RoleViewer Role = "viewer"
)

// ParseRole は文字列をRoleに変換する。未知の値はRoleNoneになる。
func ParseRole(s string) Role {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleAnalyst, RoleViewer:
		return r
	default:
		return RoleNone
	}
}

// Claims はアクセストークンのクレーム。
type Claims struct {
	jwt.RegisteredClaims
	// Role はユーザーのロール。
	Role Role `json:"role,omitempty"`
}

// contextKeyClaims はGinコンテキストに検証済みクレームを格納するためのキー。
const contextKeyClaims = "claims"

// TokenVerifier はアクセストークンの署名と有効期限を検証する。
type TokenVerifier struct {
	secret    []byte
	algorithm string
	now       func() time.Time
}

// NewTokenVerifier は秘密鍵と署名アルゴリズム（HS256 / HS384 / HS512）を指定してTokenVerifierを生成する。
func NewTokenVerifier(secret, algorithm string) *TokenVerifier {
	return &TokenVerifier{
		secret:    []byte(secret),
		algorithm: algorithm,
		now:       time.Now,
	}
}

// WithClock は有効期限の判定に使う時刻取得関数を差し替える。
func (v *TokenVerifier) WithClock(now func() time.Time) *TokenVerifier {
	v.now = now
	return v
}

// Verify はトークンを検証してクレームを返す。
// 署名不正・形式不正・期限切れ・有効期限なしはいずれもErrInvalidCredentialになる。
func (v *TokenVerifier) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{v.algorithm}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	token, err := parser.ParseWithClaims(raw, claims, func(_ *jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	claims.Role = ParseRole(string(claims.Role))
	return claims, nil
}

// TokenIssuer はアクセストークンを発行する。authサービスが使用する。
type TokenIssuer struct {
	secret  []byte
	method  jwt.SigningMethod
	expires time.Duration
	now     func() time.Time
}

// NewTokenIssuer はTokenIssuerを生成する。algorithmはHMAC系のみ受け付ける。
func NewTokenIssuer(secret, algorithm string, expires time.Duration) (*TokenIssuer, error) {
	method, ok := jwt.GetSigningMethod(algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("サポートされていない署名アルゴリズム: %s", algorithm)
	}
	return &TokenIssuer{
		secret:  []byte(secret),
		method:  method,
		expires: expires,
		now:     time.Now,
	}, nil
}

// Issue はsubjectとroleを含むトークンを発行し、有効期間（秒）とともに返す。
func (i *TokenIssuer) Issue(subject string, role Role) (string, int, error) {
	now := i.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.expires)),
		},
		Role: role,
	}
	signed, err := jwt.NewWithClaims(i.method, claims).SignedString(i.secret)
	if err != nil {
		return "", 0, fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, int(i.expires.Seconds()), nil
}

// Authorize はクレームのロールが許可集合に含まれるかを判定する。
// ロールが存在しない場合は常に拒否する。
func Authorize(claims *Claims, allowed ...Role) error {
	if claims == nil || claims.Role == RoleNone || !slices.Contains(allowed, claims.Role) {
		return ErrInsufficientRole
	}
	return nil
}

// Authenticate はBearerトークンを検証するGinミドルウェアを返す。
// 検証に成功した場合、コンテキストにクレームを設定する。
func Authenticate(v *TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := bearerClaims(c, v)
		if err != nil {
			AbortWithError(c, http.StatusUnauthorized, CodeInvalidCredential, "認証情報が無効です")
			return
		}
		c.Set(contextKeyClaims, claims)
		c.Next()
	}
}

// RequireRole はトークンの検証と認可をリクエストごとに行うGinミドルウェアを返す。
func RequireRole(v *TokenVerifier, allowed ...Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := bearerClaims(c, v)
		if err != nil {
			AbortWithError(c, http.StatusUnauthorized, CodeInvalidCredential, "認証情報が無効です")
			return
		}
		if err := Authorize(claims, allowed...); err != nil {
			AbortWithError(c, http.StatusForbidden, CodeInsufficientRole, "この操作を行う権限がありません")
			return
		}
		c.Set(contextKeyClaims, claims)
		c.Next()
	}
}

// InternalOrBearer はX-Internal-Tokenが共有シークレットと一致すれば通し、
// それ以外はBearerトークンを要求するGinミドルウェアを返す。
func InternalOrBearer(v *TokenVerifier, internalToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := c.GetHeader(httpclient.HeaderInternalToken); token != "" && internalToken != "" &&
			subtle.ConstantTimeCompare([]byte(token), []byte(internalToken)) == 1 {
			c.Next()
			return
		}
		claims, err := bearerClaims(c, v)
		if err != nil {
			AbortWithError(c, http.StatusUnauthorized, CodeInvalidCredential, "認証情報が無効です")
			return
		}
		c.Set(contextKeyClaims, claims)
		c.Next()
	}
}

// GetClaims はGinコンテキストから検証済みクレームを取得する。
// 認証ミドルウェアが事前に適用されていない場合はnilを返す。
func GetClaims(c *gin.Context) *Claims {
	v, _ := c.Get(contextKeyClaims)
	claims, _ := v.(*Claims)
	return claims
}

// bearerClaims はAuthorizationヘッダーのBearerトークンを検証する。
func bearerClaims(c *gin.Context, v *TokenVerifier) (*Claims, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return nil, ErrInvalidCredential
	}
	scheme, token, found := strings.Cut(authHeader, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return nil, ErrInvalidCredential
	}
	return v.Verify(token)
}
