package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arnavshah/role-allocator-go/pkg/models"
)

// IssueKey creates the participant key for a user id using the HMAC strategy.
// Keys are derived from the user id, so issuing twice returns the same key.
func (h *Handler) IssueKey(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	userID := models.CleanText(req.UserID)

	key := h.Auth.GenerateParticipantKey(userID)
	pk, err := h.Store.EnsureParticipantKey(c.Request.Context(), key, userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if pk.Revoked {
		c.JSON(http.StatusConflict, gin.H{"error": "key for this user has been revoked"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id": userID,
		"key":     key,
	})
}

// ListKeys returns all issued participant keys
func (h *Handler) ListKeys(c *gin.Context) {
	keys, err := h.Store.ListParticipantKeys(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"keys": keys})
}

// RevokeKey blocks a participant key
func (h *Handler) RevokeKey(c *gin.Context) {
	if err := h.Store.RevokeParticipantKey(c.Request.Context(), c.Param("userId")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Key revoked"})
}
