package patterns

import (
	"context"
	"sync"
	"time"

	"github.com/arnavshah/referee-scheduler-api/pkg/apperr"
	"github.com/arnavshah/referee-scheduler-api/pkg/assignment"
	"github.com/arnavshah/referee-scheduler-api/pkg/audit"
	"github.com/arnavshah/referee-scheduler-api/pkg/metrics"
	"github.com/arnavshah/referee-scheduler-api/pkg/store"
	"github.com/arnavshah/referee-scheduler-api/pkg/tasks"
	"github.com/rs/zerolog"
)

// TaskRefresh is the task kind that runs Refresh in the background.
const TaskRefresh = "patterns:refresh"

const (
	DefaultTTL          = 24 * time.Hour
	DefaultWindowMonths = 6
	DefaultMinFrequency = 2
	DefaultRetention    = 7 * 24 * time.Hour
)

// Analyzer owns the pattern table. It is stale until the first refresh and
// again whenever the last refresh is older than the TTL.
type Analyzer struct {
	patterns store.PatternStore
	games    store.Store
	engine   *assignment.Engine
	runner   tasks.Runner
	audit    audit.Sink
	metrics  *metrics.Metrics
	log      zerolog.Logger
	now      func() time.Time

	ttl          time.Duration
	windowMonths int
	minFrequency int
	retention    time.Duration

	mu              sync.Mutex
	lastRefreshedAt time.Time
}

type Option func(*Analyzer)

func WithLogger(l zerolog.Logger) Option { return func(a *Analyzer) { a.log = l } }

func WithClock(now func() time.Time) Option { return func(a *Analyzer) { a.now = now } }

func WithAudit(s audit.Sink) Option { return func(a *Analyzer) { a.audit = s } }

func WithMetrics(m *metrics.Metrics) Option { return func(a *Analyzer) { a.metrics = m } }

// WithRunner sets the runner SubmitRefresh enqueues on.
func WithRunner(r tasks.Runner) Option { return func(a *Analyzer) { a.runner = r } }

func WithTTL(d time.Duration) Option {
	return func(a *Analyzer) {
		if d > 0 {
			a.ttl = d
		}
	}
}

// WithWindowMonths sets how many months of history are mined.
func WithWindowMonths(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.windowMonths = n
		}
	}
}

func WithMinFrequency(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.minFrequency = n
		}
	}
}

// WithRetention sets how long an unrefreshed pattern survives.
func WithRetention(d time.Duration) Option {
	return func(a *Analyzer) {
		if d > 0 {
			a.retention = d
		}
	}
}

func New(patterns store.PatternStore, games store.Store, engine *assignment.Engine, opts ...Option) *Analyzer {
	a := &Analyzer{
		patterns:     patterns,
		games:        games,
		engine:       engine,
		audit:        audit.Nop{},
		log:          zerolog.Nop(),
		now:          time.Now,
		ttl:          DefaultTTL,
		windowMonths: DefaultWindowMonths,
		minFrequency: DefaultMinFrequency,
		retention:    DefaultRetention,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RefreshResult summarises one mining run.
type RefreshResult struct {
	HistoryRows int       `json:"history_rows"`
	Upserted    int       `json:"upserted"`
	Purged      int64     `json:"purged"`
	RefreshedAt time.Time `json:"refreshed_at"`
}

// Refresh mines history unconditionally.
func (a *Analyzer) Refresh(ctx context.Context) (*RefreshResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.refresh(ctx)
}

// EnsureFresh refreshes when the TTL has elapsed since the last refresh.
// Callers arriving during a refresh wait for it and then see fresh state.
func (a *Analyzer) EnsureFresh(ctx context.Context) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.staleLocked() {
		return false, nil
	}
	_, err := a.refresh(ctx)
	return err == nil, err
}

// Stale reports whether the next EnsureFresh would refresh.
func (a *Analyzer) Stale() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.staleLocked()
}

// LastRefreshedAt returns the time of the last successful refresh.
func (a *Analyzer) LastRefreshedAt() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastRefreshedAt
}

func (a *Analyzer) staleLocked() bool {
	return a.lastRefreshedAt.IsZero() || a.now().Sub(a.lastRefreshedAt) >= a.ttl
}

func (a *Analyzer) refresh(ctx context.Context) (*RefreshResult, error) {
	started := time.Now()
	now := a.now().UTC()
	since := now.AddDate(0, -a.windowMonths, 0)

	history, err := a.patterns.FindHistory(ctx, since)
	if err != nil {
		return nil, apperr.Wrap(err, "load assignment history")
	}

	mined := Mine(history, a.minFrequency, now)
	for i := range mined {
		if err := a.patterns.UpsertPattern(ctx, &mined[i]); err != nil {
			return nil, apperr.Wrap(err, "store pattern")
		}
	}

	purged, err := a.patterns.DeleteStalePatterns(ctx, now.Add(-a.retention))
	if err != nil {
		return nil, apperr.Wrap(err, "purge patterns")
	}

	stored, err := a.patterns.CountPatterns(ctx)
	if err != nil {
		return nil, apperr.Wrap(err, "count patterns")
	}
	a.metrics.PatternRefresh(time.Since(started), stored)
	a.lastRefreshedAt = now

	a.log.Info().
		Int("history_rows", len(history)).
		Int("upserted", len(mined)).
		Int64("purged", purged).
		Dur("took", time.Since(started)).
		Msg("assignment patterns refreshed")

	return &RefreshResult{
		HistoryRows: len(history),
		Upserted:    len(mined),
		Purged:      purged,
		RefreshedAt: now,
	}, nil
}

// Register adds the refresh task to reg.
func (a *Analyzer) Register(reg *tasks.Registry) {
	reg.Register(TaskRefresh, func(ctx context.Context, _ []byte) error {
		_, err := a.Refresh(ctx)
		return err
	})
}

// SubmitRefresh enqueues a refresh and returns the task id.
func (a *Analyzer) SubmitRefresh(ctx context.Context) (string, error) {
	if a.runner == nil {
		return "", apperr.Internal(errNoRunner, "submit pattern refresh")
	}
	return a.runner.Submit(ctx, TaskRefresh, nil)
}

// Filter narrows Analyze. Zero values do not filter.
type Filter = store.PatternFilter

// Analyze refreshes if stale and lists the stored patterns matching f,
// most frequent first.
func (a *Analyzer) Analyze(ctx context.Context, f Filter) ([]PatternView, error) {
	if f.MinSuccessRate < 0 || f.MinSuccessRate > 100 {
		return nil, apperr.Validation("min_success_rate must be between 0 and 100")
	}
	if f.MinFrequency < 0 || f.Limit < 0 {
		return nil, apperr.Validation("min_frequency and limit must not be negative")
	}
	if !f.StartDate.IsZero() && !f.EndDate.IsZero() && !f.EndDate.After(f.StartDate) {
		return nil, apperr.Validation("end_date must be after start_date")
	}
	if _, err := a.EnsureFresh(ctx); err != nil {
		return nil, err
	}
	found, err := a.patterns.ListPatterns(ctx, f)
	if err != nil {
		return nil, apperr.Wrap(err, "list patterns")
	}
	out := make([]PatternView, len(found))
	for i := range found {
		out[i] = PatternView{AssignmentPattern: found[i], Description: Describe(found[i].PatternKey)}
	}
	return out, nil
}
