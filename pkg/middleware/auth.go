package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// SessionCookieName はセッショントークンを保持するCookie名。
const SessionCookieName = "session"

// contextKeyIdentity はGinコンテキストに認証済みユーザーを格納するキー。
const contextKeyIdentity = "identity"

// Auth はセッショントークンを検証するGinミドルウェアを返す。
// トークンは Authorization: Bearer ヘッダー、なければ session Cookieから読み取る。
func Auth(verifier SessionVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := sessionToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "認証が必要です",
			})
			return
		}

		identity, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "セッションが無効または期限切れです",
			})
			return
		}

		SetIdentity(c, identity)
		c.Next()
	}
}

// sessionToken はリクエストからセッショントークンを取り出す。
func sessionToken(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		if token, found := strings.CutPrefix(authHeader, "Bearer "); found {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if cookie, err := c.Cookie(SessionCookieName); err == nil {
		return cookie
	}
	return ""
}

// SetIdentity はGinコンテキストに認証済みユーザーを設定する。
func SetIdentity(c *gin.Context, identity *Identity) {
	c.Set(contextKeyIdentity, identity)
}

// GetIdentity はGinコンテキストから認証済みユーザーを取得する。未認証の場合はnil。
func GetIdentity(c *gin.Context) *Identity {
	v, ok := c.Get(contextKeyIdentity)
	if !ok {
		return nil
	}
	identity, _ := v.(*Identity)
	return identity
}

// GetUserID はGinコンテキストからユーザーIDを取得する。未認証の場合は0。
func GetUserID(c *gin.Context) int64 {
	if identity := GetIdentity(c); identity != nil {
		return identity.UserID
	}
	return 0
}
