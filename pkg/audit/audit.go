// Package audit carries assignment lifecycle events to whoever records them.
package audit

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Event types emitted by the assignment engine.
const (
	AssignmentCreated       = "assignment.created"
	AssignmentStatusChanged = "assignment.status_changed"
	AssignmentDeleted       = "assignment.deleted"
	PatternApplied          = "pattern.applied"
)

// Event is a single audit record.
type Event struct {
	EventType string         `json:"event_type"`
	EntityID  string         `json:"entity_id"`
	ActorID   string         `json:"actor_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Sink receives audit events. Record must not block the caller for long and
// never reports failure; sinks handle their own errors.
type Sink interface {
	Record(ctx context.Context, ev Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Record(context.Context, Event) {}

// LogSink writes events to a zerolog logger.
type LogSink struct {
	Logger zerolog.Logger
}

func (s LogSink) Record(_ context.Context, ev Event) {
	s.Logger.Info().
		Str("event_type", ev.EventType).
		Str("entity_id", ev.EntityID).
		Str("actor_id", ev.ActorID).
		Interface("metadata", ev.Metadata).
		Msg("audit")
}

// Multi fans an event out to several sinks in order.
type Multi []Sink

func (m Multi) Record(ctx context.Context, ev Event) {
	for _, s := range m {
		s.Record(ctx, ev)
	}
}

// Recorder collects events in memory. Useful in tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Record(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the event types recorded so far.
func (r *Recorder) Types() []string {
	events := r.Events()
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.EventType
	}
	return out
}
