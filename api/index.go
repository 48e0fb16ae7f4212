package handler

import (
	"context"
	"net/http"
	"os"

	"github.com/arnavshah/referee-scheduler-api/internal/app"
	"github.com/arnavshah/referee-scheduler-api/internal/config"
	"github.com/arnavshah/referee-scheduler-api/pkg/logger"
	"github.com/gin-gonic/gin"
)

var r http.Handler

func init() {
	cfg, err := config.Load(context.Background())
	if err != nil {
		r = unavailable("configuration error: " + err.Error())
		return
	}
	log, _ := logger.New(cfg.LogLevel, false)

	svc, err := app.New(cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialise service")
		r = unavailable("service unavailable")
		return
	}
	r = svc.Router
}

func unavailable(message string) http.Handler {
	g := gin.New()
	g.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": gin.H{"code": "internal", "message": message}})
	})
	_, _ = os.Stderr.WriteString(message + "\n")
	return g
}

// Handler is the entry point for Vercel Go Runtime
func Handler(w http.ResponseWriter, req *http.Request) {
	r.ServeHTTP(w, req)
}
