package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arnavshah/role-allocator-go/pkg/csvio"
	"github.com/arnavshah/role-allocator-go/pkg/models"
)

// RunAllocation allocates the stored roles among the stored preferences
func (h *Handler) RunAllocation(c *gin.Context) {
	out, err := h.Service.RunAllocation(c.Request.Context(), actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// GetStatus returns whether results are published
func (h *Handler) GetStatus(c *gin.Context) {
	st, err := h.Service.Status(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// Publish makes the results visible to participants
func (h *Handler) Publish(c *gin.Context) {
	st, err := h.Service.Publish(c.Request.Context(), actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// Unpublish hides the results from participants
func (h *Handler) Unpublish(c *gin.Context) {
	st, err := h.Service.Unpublish(c.Request.Context(), actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// DeleteResults clears all assignments
func (h *Handler) DeleteResults(c *gin.Context) {
	if err := h.Service.DeleteResults(c.Request.Context(), actor(c)); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Results deleted"})
}

// ListAssignments returns the stored assignments, published or not
func (h *Handler) ListAssignments(c *gin.Context) {
	assignments, err := h.Service.Assignments(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	conflicts, err := h.Service.Conflicts(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assignments": assignments, "conflicts": conflicts})
}

// Reassign moves one assignment to a different role
func (h *Handler) Reassign(c *gin.Context) {
	var req struct {
		RoleID string `json:"role_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	a, conflicts, err := h.Service.Reassign(c.Request.Context(), c.Param("key"), req.RoleID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assignment": a, "conflicts": conflicts})
}

// ExportCSV downloads the stored assignments as CSV
func (h *Handler) ExportCSV(c *gin.Context) {
	assignments, err := h.Service.Assignments(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}

	var out strings.Builder
	if err := csvio.WriteAssignments(&out, assignments); err != nil {
		h.fail(c, err)
		return
	}

	filename := "assignments-" + time.Now().UTC().Format("2006-01-02") + ".csv"
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(out.String()))
}

// ListRuns returns recent allocation runs
func (h *Handler) ListRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "30"))
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	runs, err := h.Service.Runs(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// AllocateJSON runs an allocation over the posted roles and preferences
// without storing anything
func (h *Handler) AllocateJSON(c *gin.Context) {
	var input models.AllocateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}

	res, err := h.Service.Allocate(c.Request.Context(), input)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// AllocateCSV handles CSV file uploads for stateless allocation
func (h *Handler) AllocateCSV(c *gin.Context) {
	rolesFile, _ := c.FormFile("roles_file")
	prefsFile, _ := c.FormFile("preferences_file")
	if rolesFile == nil || prefsFile == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "roles_file and preferences_file are required"})
		return
	}

	rf, err := rolesFile.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to open roles file"})
		return
	}
	defer rf.Close()
	roles, err := csvio.ReadRoles(rf)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "roles_file: " + err.Error()})
		return
	}

	pf, err := prefsFile.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to open preferences file"})
		return
	}
	defer pf.Close()
	prefs, err := csvio.ReadPreferences(pf)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "preferences_file: " + err.Error()})
		return
	}

	input := models.AllocateInput{Roles: roles, Preferences: prefs}
	if v := c.PostForm("trials"); v != "" {
		if input.Trials, err = strconv.Atoi(v); err != nil || input.Trials < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "trials must be a positive integer"})
			return
		}
	}
	if v := c.PostForm("seed"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "seed must be an integer"})
			return
		}
		input.Seed = &seed
	}

	res, err := h.Service.Allocate(c.Request.Context(), input)
	if err != nil {
		h.fail(c, err)
		return
	}

	var out strings.Builder
	if err := csvio.WriteAssignments(&out, res.Assignments); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"csv":                             out.String(),
		"unassigned_role_ids":             res.UnassignedRoleIDs,
		"satisfaction_score":              res.SatisfactionScore,
		"max_participant_dissatisfaction": res.MaxParticipantDissatisfaction,
	})
}
