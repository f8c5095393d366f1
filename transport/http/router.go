package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/layer-3/rangda/service"
)

// HealthFunc reports readiness of the backing store.
type HealthFunc func(ctx context.Context) error

// SetupRouter sets up the Gin router.
func SetupRouter(sessions *service.SessionService, health HealthFunc) *gin.Engine {
	router := gin.Default()

	handlers := NewSessionHandlers(sessions)

	// Session lifecycle
	router.POST("/sessions", handlers.Create)
	router.DELETE("/sessions", handlers.Revoke)

	// Admin bulk revocation
	router.DELETE("/tenants/:tenant/users/:user/sessions", handlers.RevokeUser)

	// Protected API routes
	api := router.Group("/api")
	api.Use(AuthMiddleware(sessions))
	{
		api.GET("/me", handlers.Me)
	}

	router.GET("/healthz", func(c *gin.Context) {
		if health != nil {
			if err := health(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}
