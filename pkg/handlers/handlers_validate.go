package handlers

import (
	"net/http"

	"github.com/arnavshah/referee-scheduler-api/pkg/conflicts"
	"github.com/gin-gonic/gin"
)

// CheckAssignment runs the conflict detector for a candidate assignment
// without writing anything.
func (h *Handler) CheckAssignment(c *gin.Context) {
	var input conflicts.Candidate
	if err := c.ShouldBindJSON(&input); err != nil {
		h.badRequest(c, err)
		return
	}

	analysis, err := h.Engine.Check(c.Request.Context(), input)
	if err != nil {
		h.respondError(c, err)
		return
	}

	blocking := h.Engine.BlockingConflicts(analysis)
	if blocking == nil {
		blocking = []conflicts.Conflict{}
	}
	c.JSON(http.StatusOK, gin.H{
		"valid":    len(blocking) == 0,
		"analysis": analysis,
		"blocking": blocking,
	})
}
