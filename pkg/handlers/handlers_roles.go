package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arnavshah/role-allocator-go/pkg/models"
)

// ListRoles returns the configured roles
func (h *Handler) ListRoles(c *gin.Context) {
	roles, err := h.Service.Roles(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roles": roles})
}

// CreateRole adds a role
func (h *Handler) CreateRole(c *gin.Context) {
	var role models.Role
	if err := c.ShouldBindJSON(&role); err != nil {
		bindError(c, err)
		return
	}
	created, err := h.Service.CreateRole(c.Request.Context(), role)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// UpdateRole replaces the title, description and capacity of a role
func (h *Handler) UpdateRole(c *gin.Context) {
	var req struct {
		Title       string `json:"title" binding:"required"`
		Description string `json:"description"`
		Capacity    int    `json:"capacity" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	updated, err := h.Service.UpdateRole(c.Request.Context(), models.Role{
		ID:          c.Param("id"),
		Title:       req.Title,
		Description: req.Description,
		Capacity:    req.Capacity,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DeleteRole removes a role no assignment uses
func (h *Handler) DeleteRole(c *gin.Context) {
	if err := h.Service.DeleteRole(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Role deleted"})
}
