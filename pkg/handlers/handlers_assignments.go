package handlers

import (
	"net/http"

	"github.com/arnavshah/referee-scheduler-api/pkg/assignment"
	"github.com/arnavshah/referee-scheduler-api/pkg/conflicts"
	"github.com/gin-gonic/gin"
)

// CreateAssignment assigns one referee to a position on a game.
func (h *Handler) CreateAssignment(c *gin.Context) {
	var input conflicts.Candidate
	if err := c.ShouldBindJSON(&input); err != nil {
		h.badRequest(c, err)
		return
	}

	res, err := h.Engine.Create(c.Request.Context(), actor(c), input)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

type bulkCreateRequest struct {
	Assignments []assignment.BulkItem `json:"assignments"`
}

// BulkCreate assigns several referees to the game in the path.
func (h *Handler) BulkCreate(c *gin.Context) {
	var input bulkCreateRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		h.badRequest(c, err)
		return
	}

	res, err := h.Engine.BulkCreate(c.Request.Context(), actor(c), c.Param("id"), input.Assignments)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(bulkStatus(res.Summary.Successful, res.Summary.Failed), res)
}

type bulkUpdateRequest struct {
	Updates []assignment.StatusUpdate `json:"updates"`
}

// BulkUpdateStatus changes the status of several assignments.
func (h *Handler) BulkUpdateStatus(c *gin.Context) {
	var input bulkUpdateRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		h.badRequest(c, err)
		return
	}

	res, err := h.Engine.BulkUpdateStatus(c.Request.Context(), actor(c), input.Updates)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(bulkStatus(res.Summary.SuccessfulUpdates, res.Summary.FailedUpdates), res)
}

type bulkRemoveRequest struct {
	AssignmentIDs []string `json:"assignment_ids"`
}

// BulkRemove deletes several assignments.
func (h *Handler) BulkRemove(c *gin.Context) {
	var input bulkRemoveRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		h.badRequest(c, err)
		return
	}

	res, err := h.Engine.BulkRemove(c.Request.Context(), actor(c), input.AssignmentIDs)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(bulkStatus(res.Summary.Deleted+res.Summary.NotFound, res.Summary.Failed), res)
}

// AvailableReferees lists every referee with their conflicts for a game.
func (h *Handler) AvailableReferees(c *gin.Context) {
	res, err := h.Engine.AvailableReferees(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
