package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/arnavshah/referee-scheduler-api/pkg/apperr"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// LocalRunner runs tasks on goroutines inside the process. Task state is
// kept in memory and lost on restart.
type LocalRunner struct {
	registry *Registry
	log      zerolog.Logger
	now      func() time.Time

	mu    sync.Mutex
	tasks map[string]*Info
	wg    sync.WaitGroup
}

var _ Runner = (*LocalRunner)(nil)

// LocalOption configures a LocalRunner.
type LocalOption func(*LocalRunner)

func WithLogger(l zerolog.Logger) LocalOption {
	return func(r *LocalRunner) { r.log = l }
}

func WithClock(now func() time.Time) LocalOption {
	return func(r *LocalRunner) { r.now = now }
}

func NewLocalRunner(reg *Registry, opts ...LocalOption) *LocalRunner {
	r := &LocalRunner{
		registry: reg,
		log:      zerolog.Nop(),
		now:      time.Now,
		tasks:    make(map[string]*Info),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Submit starts the task and returns its id. The task keeps running after
// ctx is cancelled.
func (r *LocalRunner) Submit(ctx context.Context, kind string, payload []byte) (string, error) {
	h, err := r.registry.Handler(kind)
	if err != nil {
		return "", err
	}
	id, err := gonanoid.New()
	if err != nil {
		return "", apperr.Internal(err, "generate task id")
	}

	r.mu.Lock()
	r.tasks[id] = &Info{ID: id, Kind: kind, State: StatePending, SubmittedAt: r.now().UTC()}
	r.mu.Unlock()

	r.wg.Add(1)
	go r.run(context.WithoutCancel(ctx), id, h, payload)
	return id, nil
}

func (r *LocalRunner) run(ctx context.Context, id string, h Handler, payload []byte) {
	defer r.wg.Done()
	r.setState(id, StateRunning, nil)

	err := h(ctx, payload)
	if err != nil {
		r.log.Error().Err(err).Str("task_id", id).Msg("task failed")
		r.setState(id, StateFailed, err)
		return
	}
	r.setState(id, StateSucceeded, nil)
}

func (r *LocalRunner) setState(id string, s State, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info := r.tasks[id]
	info.State = s
	if err != nil {
		info.Error = err.Error()
	}
	if s == StateSucceeded || s == StateFailed {
		t := r.now().UTC()
		info.FinishedAt = &t
	}
}

func (r *LocalRunner) Status(_ context.Context, id string) (*Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.tasks[id]
	if !ok {
		return nil, apperr.NotFound("task", id)
	}
	cp := *info
	return &cp, nil
}

// Wait blocks until every submitted task has finished.
func (r *LocalRunner) Wait() {
	r.wg.Wait()
}
