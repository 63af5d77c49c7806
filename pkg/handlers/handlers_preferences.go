package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arnavshah/role-allocator-go/pkg/models"
)

// GetMyPreference returns the calling participant's preference list
func (h *Handler) GetMyPreference(c *gin.Context) {
	pref, err := h.Service.Preference(c.Request.Context(), c.GetString(ctxUserID))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, pref)
}

// SaveMyPreference stores the calling participant's preference list
func (h *Handler) SaveMyPreference(c *gin.Context) {
	var in models.PreferenceInput
	if err := c.ShouldBindJSON(&in); err != nil {
		bindError(c, err)
		return
	}
	pref, err := h.Service.SavePreference(c.Request.Context(), c.GetString(ctxUserID), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, pref)
}

// DeleteMyPreference withdraws the calling participant's preference list
func (h *Handler) DeleteMyPreference(c *gin.Context) {
	if err := h.Service.DeletePreference(c.Request.Context(), c.GetString(ctxUserID)); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Preference deleted"})
}

// ListPreferences returns every submitted preference list
func (h *Handler) ListPreferences(c *gin.Context) {
	prefs, err := h.Service.Preferences(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"preferences": prefs, "count": len(prefs)})
}

// DeletePreference removes a participant's preference list on their behalf
func (h *Handler) DeletePreference(c *gin.Context) {
	if err := h.Service.DeletePreference(c.Request.Context(), c.Param("userId")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Preference deleted"})
}

// GetResults returns the published assignments
func (h *Handler) GetResults(c *gin.Context) {
	assignments, err := h.Service.Results(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assignments": assignments})
}

// GetMyResults returns the calling participant's published assignments
func (h *Handler) GetMyResults(c *gin.Context) {
	assignments, err := h.Service.Results(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	userID := c.GetString(ctxUserID)
	mine := []models.Assignment{}
	for _, a := range assignments {
		if a.UserID == userID {
			mine = append(mine, a)
		}
	}
	c.JSON(http.StatusOK, gin.H{"assignments": mine})
}
