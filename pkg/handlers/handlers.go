package handlers

import (
	"errors"
	"net/http"

	"github.com/arnavshah/referee-scheduler-api/pkg/apperr"
	"github.com/arnavshah/referee-scheduler-api/pkg/assignment"
	"github.com/arnavshah/referee-scheduler-api/pkg/auth"
	"github.com/arnavshah/referee-scheduler-api/pkg/logger"
	"github.com/arnavshah/referee-scheduler-api/pkg/metrics"
	"github.com/arnavshah/referee-scheduler-api/pkg/patterns"
	"github.com/arnavshah/referee-scheduler-api/pkg/tasks"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Version is reported by the index route.
const Version = "1.0.0"

// Handler contains dependencies for the route handlers
type Handler struct {
	Engine   *assignment.Engine
	Analyzer *patterns.Analyzer
	Runner   tasks.Runner
	Metrics  *metrics.Metrics
	Secret   []byte
	Log      zerolog.Logger
}

// NewRouter registers every route on a fresh gin engine.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logger.Middleware(h.Log))

	r.GET("/", h.Index)
	if h.Metrics != nil {
		r.GET("/metrics", gin.WrapH(h.Metrics.Handler()))
	}

	api := r.Group("/api")
	api.Use(h.AuthMiddleware())
	{
		api.POST("/assignments", h.CreateAssignment)
		api.POST("/assignments/check", h.CheckAssignment)
		api.PATCH("/assignments/status", h.BulkUpdateStatus)
		api.POST("/assignments/bulk-delete", h.BulkRemove)
		api.POST("/games/:id/assignments/bulk", h.BulkCreate)
		api.GET("/games/:id/available-referees", h.AvailableReferees)

		api.GET("/patterns", h.ListPatterns)
		api.POST("/patterns/refresh", h.RefreshPatterns)
		api.POST("/patterns/:id/apply", h.ApplyPattern)

		api.GET("/tasks/:id", h.TaskStatus)
	}
	return r
}

// Index is the service banner.
func (h *Handler) Index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Referee Assignment API",
		"version": Version,
	})
}

// AuthMiddleware verifies the JWT token and stores the actor id
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthorized(c, "Authorization header required")
			return
		}

		claims, err := auth.VerifyToken(h.Secret, auth.BearerToken(header))
		if err != nil {
			abortUnauthorized(c, "Invalid token")
			return
		}

		c.Set("actor", claims.Actor())
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": gin.H{"code": "unauthorized", "message": message},
	})
}

func actor(c *gin.Context) string {
	return c.GetString("actor")
}

// statusOf maps an error kind to its HTTP status.
func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the JSON error envelope. Internal causes are logged
// with their stack and never sent to the client.
func (h *Handler) respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		h.Log.Error().
			Str("path", c.Request.URL.Path).
			Str("trace", apperr.Trace(err)).
			Msg("request failed")
	}
	body := gin.H{"code": kind, "message": apperr.MessageOf(err)}
	var ae *apperr.Error
	if kind != apperr.KindInternal && errors.As(err, &ae) && ae.Details != nil {
		body["details"] = ae.Details
	}
	_ = c.Error(err)
	c.JSON(statusOf(kind), gin.H{"error": body})
}

func (h *Handler) badRequest(c *gin.Context, err error) {
	h.respondError(c, apperr.Validation("invalid request body: %v", err))
}

// bulkStatus is 422 when nothing succeeded and 200 otherwise.
func bulkStatus(successful, failed int) int {
	if successful == 0 && failed > 0 {
		return http.StatusUnprocessableEntity
	}
	return http.StatusOK
}
