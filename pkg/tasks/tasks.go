// Package tasks runs background work behind an id that callers can poll.
package tasks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/arnavshah/referee-scheduler-api/pkg/apperr"
)

// State is the lifecycle of a submitted task.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Info describes a submitted task.
type Info struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	State       State      `json:"state"`
	Error       string     `json:"error,omitempty"`
	SubmittedAt time.Time  `json:"submitted_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// Handler executes one task.
type Handler func(ctx context.Context, payload []byte) error

// Runner accepts tasks and reports their state.
type Runner interface {
	Submit(ctx context.Context, kind string, payload []byte) (string, error)
	Status(ctx context.Context, id string) (*Info, error)
}

// Registry maps task kinds to handlers. It is shared by every runner so the
// same kinds work in-process and on the asynq worker.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds h under kind, replacing any earlier handler.
func (r *Registry) Register(kind string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = h
}

// Handler returns the handler for kind.
func (r *Registry) Handler(kind string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	if !ok {
		return nil, apperr.Validation("unknown task kind %q", kind)
	}
	return h, nil
}

// Kinds lists registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
