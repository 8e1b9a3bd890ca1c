package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// CronSecretHeader carries the shared secret the scheduler sends with each trigger.
const CronSecretHeader = "X-Cron-Secret"

// CronSecretMiddleware returns a Gin middleware that authenticates scheduled
// triggers via a shared-secret header. An empty configured secret rejects
// everything rather than opening the endpoint.
func CronSecretMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(CronSecretHeader)
		if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Unauthorized"})
			return
		}
		c.Next()
	}
}
