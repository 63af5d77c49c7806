package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Version is reported on the root route
const Version = "1.0.0"

// Register mounts every route on r
func (h *Handler) Register(r *gin.Engine) {
	// Admin interface - serve static files from embedded FS
	r.StaticFS("/static", h.GetStaticFS())

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Role Allocator API",
			"version": Version,
		})
	})
	r.GET("/health", h.Health)
	if h.Metrics != nil {
		r.GET("/metrics", gin.WrapH(h.Metrics))
	}

	r.GET("/admin", h.AdminInterface)
	r.POST("/admin/login", h.Login)

	// Admin Endpoints
	admin := r.Group("/admin")
	admin.Use(h.AuthMiddleware())
	{
		admin.GET("/roles", h.ListRoles)
		admin.POST("/roles", h.CreateRole)
		admin.PUT("/roles/:id", h.UpdateRole)
		admin.DELETE("/roles/:id", h.DeleteRole)

		admin.GET("/preferences", h.ListPreferences)
		admin.DELETE("/preferences/:userId", h.DeletePreference)

		admin.POST("/allocation/run", h.RunAllocation)
		admin.GET("/allocation/status", h.GetStatus)
		admin.POST("/allocation/publish", h.Publish)
		admin.POST("/allocation/unpublish", h.Unpublish)
		admin.DELETE("/allocation", h.DeleteResults)

		admin.GET("/assignments", h.ListAssignments)
		admin.GET("/assignments/export", h.ExportCSV)
		admin.PUT("/assignments/:key", h.Reassign)

		admin.GET("/runs", h.ListRuns)

		admin.POST("/keys", h.IssueKey)
		admin.GET("/keys", h.ListKeys)
		admin.DELETE("/keys/:userId", h.RevokeKey)
	}

	r.GET("/api/roles", h.ListRoles)

	// Participant Endpoints
	api := r.Group("/api")
	api.Use(h.ParticipantKeyMiddleware())
	{
		api.GET("/preferences/me", h.GetMyPreference)
		api.PUT("/preferences/me", h.SaveMyPreference)
		api.DELETE("/preferences/me", h.DeleteMyPreference)

		api.GET("/results", h.GetResults)
		api.GET("/results/me", h.GetMyResults)

		api.POST("/allocate", h.AllocateJSON)
		api.POST("/allocate/csv", h.AllocateCSV)
		api.POST("/validate", h.ValidateInput)
	}
}
