package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arnavshah/referee-scheduler-api/pkg/apperr"
	"github.com/hibiken/asynq"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// completedRetention keeps finished tasks visible to Status.
const completedRetention = 24 * time.Hour

// AsynqRunner enqueues tasks on Redis for an asynq worker.
type AsynqRunner struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	registry  *Registry
	queue     string
}

var _ Runner = (*AsynqRunner)(nil)

func NewAsynqRunner(opt asynq.RedisConnOpt, queue string, reg *Registry) *AsynqRunner {
	if queue == "" {
		queue = "default"
	}
	return &AsynqRunner{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
		registry:  reg,
		queue:     queue,
	}
}

func (r *AsynqRunner) Submit(ctx context.Context, kind string, payload []byte) (string, error) {
	if _, err := r.registry.Handler(kind); err != nil {
		return "", err
	}
	id, err := gonanoid.New()
	if err != nil {
		return "", apperr.Internal(err, "generate task id")
	}
	_, err = r.client.EnqueueContext(ctx, asynq.NewTask(kind, payload),
		asynq.TaskID(id),
		asynq.Queue(r.queue),
		asynq.MaxRetry(3),
		asynq.Retention(completedRetention),
	)
	if err != nil {
		return "", apperr.Internal(err, "enqueue task")
	}
	return id, nil
}

func (r *AsynqRunner) Status(_ context.Context, id string) (*Info, error) {
	ti, err := r.inspector.GetTaskInfo(r.queue, id)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return nil, apperr.NotFound("task", id)
		}
		return nil, apperr.Internal(err, "inspect task")
	}
	info := &Info{ID: ti.ID, Kind: ti.Type, State: stateOf(ti.State), Error: ti.LastErr}
	if !ti.CompletedAt.IsZero() {
		t := ti.CompletedAt.UTC()
		info.FinishedAt = &t
	}
	return info, nil
}

func (r *AsynqRunner) Close() error {
	return errors.Join(r.client.Close(), r.inspector.Close())
}

func stateOf(s asynq.TaskState) State {
	switch s {
	case asynq.TaskStateActive:
		return StateRunning
	case asynq.TaskStateCompleted:
		return StateSucceeded
	case asynq.TaskStateArchived:
		return StateFailed
	default:
		return StatePending
	}
}

// NewServer builds an asynq worker serving every kind in reg.
func NewServer(opt asynq.RedisConnOpt, queue string, concurrency int, reg *Registry, log zerolog.Logger) (*asynq.Server, *asynq.ServeMux) {
	if queue == "" {
		queue = "default"
	}
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queue: 1},
		Logger:      asynqLogger{log: log.With().Str("component", "asynq").Logger()},
	})

	mux := asynq.NewServeMux()
	for _, kind := range reg.Kinds() {
		h, _ := reg.Handler(kind)
		mux.HandleFunc(kind, func(ctx context.Context, t *asynq.Task) error {
			return h(ctx, t.Payload())
		})
	}
	return srv, mux
}

// asynqLogger adapts zerolog to asynq.Logger.
type asynqLogger struct {
	log zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.log.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.log.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.log.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.log.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.log.Fatal().Msg(fmt.Sprint(args...)) }
