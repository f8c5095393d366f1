package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/layer-3/rangda/core"
	"github.com/layer-3/rangda/service"
)

const identityKey = "identity"

// AuthMiddleware validates the bearer token on every request. All rejection
// kinds collapse into the same 401 so callers cannot probe which check
// failed; only store faults surface differently.
func AuthMiddleware(sessions *service.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")

		if len(auth) < 8 || auth[:7] != "Bearer " {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid session"})
			return
		}

		identity, err := sessions.ValidateSession(c.Request.Context(), auth[7:])
		if err != nil {
			if core.IsRejection(err) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid session"})
			} else {
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Validation unavailable"})
			}
			return
		}

		c.Set(identityKey, identity)

		c.Next()
	}
}
