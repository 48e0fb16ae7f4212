// Package app wires configuration into a runnable service.
package app

import (
	"context"
	"fmt"

	"github.com/arnavshah/referee-scheduler-api/internal/config"
	"github.com/arnavshah/referee-scheduler-api/pkg/assignment"
	"github.com/arnavshah/referee-scheduler-api/pkg/audit"
	"github.com/arnavshah/referee-scheduler-api/pkg/database"
	"github.com/arnavshah/referee-scheduler-api/pkg/handlers"
	"github.com/arnavshah/referee-scheduler-api/pkg/metrics"
	"github.com/arnavshah/referee-scheduler-api/pkg/patterns"
	"github.com/arnavshah/referee-scheduler-api/pkg/tasks"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// App holds the wired components of the service.
type App struct {
	Router   *gin.Engine
	Engine   *assignment.Engine
	Analyzer *patterns.Analyzer
	Runner   tasks.Runner

	db     *gorm.DB
	log    zerolog.Logger
	worker *asynq.Server
	mux    *asynq.ServeMux
	asynq  *tasks.AsynqRunner
}

// New opens the database and builds every component from cfg.
func New(cfg *config.Config, log zerolog.Logger) (*App, error) {
	switch cfg.GinMode {
	case "":
		gin.SetMode(gin.ReleaseMode)
	default:
		gin.SetMode(cfg.GinMode)
	}

	db, err := database.Open(database.Options{
		DatabaseURL: cfg.DatabaseURL,
		DataPath:    cfg.DataPath,
		Logger:      log,
		LogQueries:  cfg.LogQueries,
	})
	if err != nil {
		return nil, err
	}

	repo := database.NewRepository(db, database.WithLogger(log))
	m := metrics.New()
	sink := audit.Multi{repo, audit.LogSink{Logger: log}}

	engine := assignment.New(repo,
		assignment.WithLogger(log),
		assignment.WithAudit(sink),
		assignment.WithMetrics(m),
		assignment.WithQualificationBlocking(cfg.QualificationBlocking),
		assignment.WithMaxBatchSize(cfg.MaxBatchSize),
	)

	a := &App{Engine: engine, db: db, log: log}
	reg := tasks.NewRegistry()
	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
	if cfg.RedisAddr != "" {
		a.asynq = tasks.NewAsynqRunner(redisOpt, cfg.TaskQueue, reg)
		a.Runner = a.asynq
	} else {
		a.Runner = tasks.NewLocalRunner(reg, tasks.WithLogger(log))
	}

	a.Analyzer = patterns.New(repo, repo, engine,
		patterns.WithLogger(log),
		patterns.WithAudit(sink),
		patterns.WithMetrics(m),
		patterns.WithRunner(a.Runner),
		patterns.WithTTL(cfg.PatternTTL),
		patterns.WithWindowMonths(cfg.PatternWindowMonths),
		patterns.WithMinFrequency(cfg.PatternMinFrequency),
		patterns.WithRetention(cfg.PatternRetention),
	)
	a.Analyzer.Register(reg)
	if a.asynq != nil {
		// The worker mux is built from the registry, so handlers must be registered first.
		a.worker, a.mux = tasks.NewServer(redisOpt, cfg.TaskQueue, cfg.WorkerConcurrency, reg, log)
	}

	a.Router = handlers.NewRouter(&handlers.Handler{
		Engine:   engine,
		Analyzer: a.Analyzer,
		Runner:   a.Runner,
		Metrics:  m,
		Secret:   []byte(cfg.JWTSecret),
		Log:      log,
	})
	if cfg.JWTSecret == "" {
		log.Warn().Msg("jwt_secret is empty; every /api request will be rejected")
	}
	return a, nil
}

// Start launches the asynq worker when Redis is configured.
func (a *App) Start(_ context.Context) error {
	if a.worker == nil {
		return nil
	}
	if err := a.worker.Start(a.mux); err != nil {
		return fmt.Errorf("start task worker: %w", err)
	}
	a.log.Info().Msg("task worker started")
	return nil
}

// Close stops the worker and releases the database.
func (a *App) Close() error {
	if a.worker != nil {
		a.worker.Shutdown()
	}
	if a.asynq != nil {
		if err := a.asynq.Close(); err != nil {
			a.log.Error().Err(err).Msg("failed to close task client")
		}
	}
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
