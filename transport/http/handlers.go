package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/layer-3/rangda/core"
	"github.com/layer-3/rangda/service"
)

// SessionHandlers contains HTTP handlers for the session endpoints.
type SessionHandlers struct {
	sessions *service.SessionService
}

// NewSessionHandlers creates new session handlers.
func NewSessionHandlers(sessions *service.SessionService) *SessionHandlers {
	return &SessionHandlers{sessions: sessions}
}

// Create handles session creation after upstream authentication.
func (h *SessionHandlers) Create(c *gin.Context) {
	var req struct {
		TenantID string `json:"tenant_id" binding:"required"`
		UserID   string `json:"user_id" binding:"required"`
		DeviceID string `json:"device_id" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	token, err := h.sessions.CreateSession(c.Request.Context(), req.TenantID, req.UserID, req.DeviceID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to create session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"token_type": "Bearer",
	})
}

// Revoke handles single-session logout.
func (h *SessionHandlers) Revoke(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	revoked, err := h.sessions.InvalidateSession(c.Request.Context(), req.Token)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to revoke session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"revoked": revoked})
}

// RevokeUser handles the admin-level bulk revocation of a user's sessions.
func (h *SessionHandlers) RevokeUser(c *gin.Context) {
	tenantID := c.Param("tenant")
	userID := c.Param("user")

	count, err := h.sessions.InvalidateUserSessions(c.Request.Context(), tenantID, userID)
	if err != nil {
		if errors.Is(err, core.ErrStoreUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to revoke sessions"})
			return
		}
		// The version bump stood but propagation is degraded; the count is
		// still meaningful.
		c.JSON(http.StatusOK, gin.H{"count": count, "warning": "event propagation degraded"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": count})
}

// Me returns the identity established by the auth middleware.
func (h *SessionHandlers) Me(c *gin.Context) {
	identity, exists := c.Get(identityKey)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Identity not found in context"})
		return
	}

	c.JSON(http.StatusOK, identity)
}
