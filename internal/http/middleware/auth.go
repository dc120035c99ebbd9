// README: Firebase bearer-token auth; stores the caller's uid and raw token on the gin context.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tripmate/internal/infra"
)

const (
	ctxKeyUID   = "caller_uid"
	ctxKeyToken = "caller_token"
)

// Auth rejects requests without a verifiable "Authorization: Bearer <token>"
// header. The raw token is kept so it can be forwarded to the travel backend.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		raw = strings.TrimSpace(raw)
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), raw)
		if err != nil || token == nil || token.UID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(ctxKeyUID, token.UID)
		c.Set(ctxKeyToken, raw)
		c.Next()
	}
}

// CallerUID returns the verified uid, or "" outside Auth.
func CallerUID(c *gin.Context) string {
	return c.GetString(ctxKeyUID)
}

// CallerToken returns the caller's raw bearer token.
func CallerToken(c *gin.Context) string {
	return c.GetString(ctxKeyToken)
}
