package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/arnavshah/referee-scheduler-api/pkg/apperr"
	"github.com/arnavshah/referee-scheduler-api/pkg/models"
	"github.com/arnavshah/referee-scheduler-api/pkg/patterns"
	"github.com/gin-gonic/gin"
)

// ListPatterns returns the mined assignment patterns, refreshing them first
// when they are stale.
func (h *Handler) ListPatterns(c *gin.Context) {
	filter, err := patternFilter(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	found, err := h.Analyzer.Analyze(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"patterns":          found,
		"count":             len(found),
		"last_refreshed_at": h.Analyzer.LastRefreshedAt(),
	})
}

func patternFilter(c *gin.Context) (patterns.Filter, error) {
	f := patterns.Filter{
		RefereeID: c.Query("referee_id"),
		DayOfWeek: c.Query("day_of_week"),
		Location:  c.Query("location"),
		Level:     models.Division(c.Query("level")),
		TimeSlot:  models.TimeSlot(c.Query("time_slot")),
	}
	var err error
	if f.MinFrequency, err = intQuery(c, "min_frequency"); err != nil {
		return f, err
	}
	if f.Limit, err = intQuery(c, "limit"); err != nil {
		return f, err
	}
	if v := c.Query("min_success_rate"); v != "" {
		if f.MinSuccessRate, err = strconv.ParseFloat(v, 64); err != nil {
			return f, apperr.Validation("min_success_rate must be a number")
		}
	}
	if f.StartDate, err = dateQuery(c, "start_date"); err != nil {
		return f, err
	}
	if f.EndDate, err = dateQuery(c, "end_date"); err != nil {
		return f, err
	}
	return f, nil
}

func dateQuery(c *gin.Context, name string) (time.Time, error) {
	v := c.Query(name)
	if v == "" {
		return time.Time{}, nil
	}
	d, err := time.ParseInLocation(models.DateLayout, v, time.UTC)
	if err != nil {
		return time.Time{}, apperr.Validation("%s must be a date in YYYY-MM-DD form", name)
	}
	return d, nil
}

func intQuery(c *gin.Context, name string) (int, error) {
	v := c.Query(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperr.Validation("%s must be an integer", name)
	}
	return n, nil
}

type applyRequest struct {
	GameIDs           []string `json:"game_ids"`
	OverrideConflicts bool     `json:"override_conflicts"`
}

// ApplyPattern assigns a pattern's referee to the given games.
func (h *Handler) ApplyPattern(c *gin.Context) {
	var input applyRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		h.badRequest(c, err)
		return
	}

	res, err := h.Analyzer.Apply(c.Request.Context(), actor(c), c.Param("id"), input.GameIDs, input.OverrideConflicts)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(bulkStatus(len(res.Created), len(res.Errors)), res)
}

// RefreshPatterns schedules a pattern refresh in the background.
func (h *Handler) RefreshPatterns(c *gin.Context) {
	id, err := h.Analyzer.SubmitRefresh(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"task_id": id,
		"kind":    patterns.TaskRefresh,
	})
}

// TaskStatus reports the state of a background task.
func (h *Handler) TaskStatus(c *gin.Context) {
	if h.Runner == nil {
		h.respondError(c, apperr.NotFound("task", c.Param("id")))
		return
	}
	info, err := h.Runner.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}
