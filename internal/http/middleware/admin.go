package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HeaderAdminToken carries the support tooling credential.
const HeaderAdminToken = "X-Admin-Token"

// AdminAuth rejects requests whose X-Admin-Token does not match token. An
// empty token rejects everything.
func AdminAuth(token string) gin.HandlerFunc {
	want := []byte(token)
	return func(c *gin.Context) {
		got := []byte(c.GetHeader(HeaderAdminToken))
		if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
			LoggerFrom(c).Warn().Msg("admin token rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "unauthorized",
				"message":    "unauthorized",
			})
			return
		}
		c.Next()
	}
}
