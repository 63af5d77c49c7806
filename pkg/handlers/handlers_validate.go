package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arnavshah/role-allocator-go/pkg/allocator"
	"github.com/arnavshah/role-allocator-go/pkg/models"
	"github.com/arnavshah/role-allocator-go/pkg/service"
)

// ValidateInput checks an allocation payload without running it
func (h *Handler) ValidateInput(c *gin.Context) {
	var input models.AllocateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"valid": false,
			"error": err.Error(),
		})
		return
	}

	totalSlots, err := h.Service.Validate(input)
	if err != nil {
		if !errors.Is(err, service.ErrInvalidInput) {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"valid": false, "error": err.Error()})
		return
	}

	participants := make(map[string]bool, len(input.Preferences))
	for _, p := range input.Preferences {
		participants[p.UserID] = true
	}

	stats := gin.H{
		"role_count":        len(input.Roles),
		"total_slots":       totalSlots,
		"participant_count": len(participants),
	}
	if len(participants) > 0 {
		min, max := allocator.LoadBounds(totalSlots, len(participants))
		stats["min_per_participant"] = min
		stats["max_per_participant"] = max
	}

	c.JSON(http.StatusOK, gin.H{"valid": true, "stats": stats})
}
