package bridge

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// allowedOrigin validates the Origin header against the configured list.
// Requests without an Origin header (curl, same-host tooling) pass. "*"
// in the list disables the check.
func allowedOrigin(origins []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(origins))
	wildcard := false
	for _, o := range origins {
		if o == "*" {
			wildcard = true
		}
		allowed[o] = struct{}{}
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" || wildcard {
			c.Next()
			return
		}
		if _, ok := allowed[origin]; !ok {
			c.JSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
			c.Abort()
			return
		}
		c.Header("Access-Control-Allow-Origin", origin)
		c.Next()
	}
}
