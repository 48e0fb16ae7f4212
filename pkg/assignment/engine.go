// Package assignment creates, updates and removes referee assignments while
// keeping the slot and capacity invariants of each game.
package assignment

import (
	"context"
	"strings"
	"time"

	"github.com/arnavshah/referee-scheduler-api/pkg/apperr"
	"github.com/arnavshah/referee-scheduler-api/pkg/audit"
	"github.com/arnavshah/referee-scheduler-api/pkg/conflicts"
	"github.com/arnavshah/referee-scheduler-api/pkg/metrics"
	"github.com/arnavshah/referee-scheduler-api/pkg/models"
	"github.com/arnavshah/referee-scheduler-api/pkg/store"
	"github.com/arnavshah/referee-scheduler-api/pkg/wage"
	"github.com/rs/zerolog"
)

// DefaultMaxBatchSize caps the number of items in one bulk call.
const DefaultMaxBatchSize = 100

// Engine orchestrates assignment writes.
type Engine struct {
	store    store.Store
	detector *conflicts.Detector
	audit    audit.Sink
	metrics  *metrics.Metrics
	log      zerolog.Logger
	now      func() time.Time

	qualificationBlocking bool
	maxBatchSize          int
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func WithAudit(s audit.Sink) Option {
	return func(e *Engine) { e.audit = s }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithQualificationBlocking decides whether a qualification conflict
// rejects a create (Forbidden) or is returned as a warning.
func WithQualificationBlocking(block bool) Option {
	return func(e *Engine) { e.qualificationBlocking = block }
}

func WithMaxBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxBatchSize = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine over s.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:                 s,
		detector:              conflicts.New(s),
		audit:                 audit.Nop{},
		log:                   zerolog.Nop(),
		now:                   time.Now,
		qualificationBlocking: true,
		maxBatchSize:          DefaultMaxBatchSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateResult is returned by a successful create.
type CreateResult struct {
	Assignment    *models.Assignment `json:"assignment"`
	WageBreakdown wage.Breakdown     `json:"wage_breakdown"`
	Warnings      []string           `json:"warnings"`
}

// Check runs the conflict detector without writing anything.
func (e *Engine) Check(ctx context.Context, c conflicts.Candidate) (*conflicts.Analysis, error) {
	if err := validateCandidate(c); err != nil {
		return nil, err
	}
	a, err := e.detector.Check(ctx, c)
	if err != nil {
		return nil, err
	}
	e.countConflicts(a)
	return a, nil
}

// Create assigns a referee to a position on a game. The conflict check is
// repeated inside the write transaction after locking the game and referee
// rows, so of two callers racing for the last slot exactly one wins.
func (e *Engine) Create(ctx context.Context, actor string, c conflicts.Candidate) (*CreateResult, error) {
	analysis, err := e.Check(ctx, c)
	if err != nil {
		return nil, err
	}
	return e.CreateChecked(ctx, actor, c, analysis)
}

// CreateChecked is Create for a candidate the caller already ran through
// Check. The analysis supplies the loaded game and referee; the blocking
// checks still run again under the row locks.
func (e *Engine) CreateChecked(ctx context.Context, actor string, c conflicts.Candidate, analysis *conflicts.Analysis) (*CreateResult, error) {
	warnings, err := e.Blocking(analysis)
	if err != nil {
		return nil, err
	}

	game, referee := analysis.Game, analysis.Referee
	breakdown, err := wage.Calculate(referee.BaseWage(game), game.WageMultiplier, game.MultiplierReason)
	if err != nil {
		return nil, err
	}

	a := e.newAssignment(actor, c, breakdown)
	err = e.store.Transaction(ctx, func(tx store.Store) error {
		if err := e.lockAndRecheck(ctx, tx, c); err != nil {
			return err
		}
		if err := tx.InsertAssignment(ctx, a); err != nil {
			return err
		}
		_, err := syncGameStatus(ctx, tx, c.GameID)
		return err
	})
	if err != nil {
		e.log.Debug().Err(err).
			Str("game_id", c.GameID).
			Str("user_id", c.RefereeID).
			Msg("assignment rejected")
		return nil, apperr.Wrap(err, "create assignment")
	}

	e.recordCreated(ctx, actor, a, breakdown)
	return &CreateResult{Assignment: a, WageBreakdown: breakdown, Warnings: warnings}, nil
}

func (e *Engine) recordCreated(ctx context.Context, actor string, a *models.Assignment, breakdown wage.Breakdown) {
	e.metrics.AssignmentCreated()
	e.audit.Record(ctx, audit.Event{
		EventType: audit.AssignmentCreated,
		EntityID:  a.ID,
		ActorID:   actor,
		Metadata: map[string]any{
			"game_id":     a.GameID,
			"user_id":     a.RefereeID,
			"position_id": a.PositionID,
			"wage":        breakdown.FinalWage.StringFixed(wage.Places),
		},
	})
	e.log.Info().
		Str("assignment_id", a.ID).
		Str("game_id", a.GameID).
		Str("user_id", a.RefereeID).
		Str("wage", breakdown.FinalWage.StringFixed(wage.Places)).
		Msg("assignment created")
}

func (e *Engine) newAssignment(actor string, c conflicts.Candidate, breakdown wage.Breakdown) *models.Assignment {
	now := e.now().UTC()
	return &models.Assignment{
		GameID:         c.GameID,
		RefereeID:      c.RefereeID,
		PositionID:     c.PositionID,
		Status:         models.StatusPending,
		CalculatedWage: breakdown.FinalWage,
		AssignedBy:     actor,
		AssignedAt:     now,
		UpdatedAt:      now,
	}
}

// lockAndRecheck takes the game and referee row locks and repeats the
// blocking checks against tx.
func (e *Engine) lockAndRecheck(ctx context.Context, tx store.Store, c conflicts.Candidate) error {
	if _, err := tx.LockGame(ctx, c.GameID); err != nil {
		return err
	}
	if _, err := tx.LockReferee(ctx, c.RefereeID); err != nil {
		return err
	}
	recheck, err := conflicts.New(tx).Check(ctx, c)
	if err != nil {
		return err
	}
	_, err = e.Blocking(recheck)
	return err
}

// Blocking returns the first hard-blocking conflict of a as an error, in
// detector order. Non-blocking conflicts are folded into the warnings.
func (e *Engine) Blocking(a *conflicts.Analysis) ([]string, error) {
	warnings := append([]string{}, a.Warnings...)
	for _, c := range a.Conflicts {
		switch {
		case IsBlocking(c.Type):
			return nil, apperr.Conflict(c.Message, a)
		case c.Type == conflicts.Unqualified && e.qualificationBlocking:
			return nil, apperr.Forbidden(c.Message, a)
		}
		warnings = append(warnings, c.Message)
	}
	return warnings, nil
}

// BlockingConflicts returns the conflicts of a that would reject a create.
func (e *Engine) BlockingConflicts(a *conflicts.Analysis) []conflicts.Conflict {
	var out []conflicts.Conflict
	for _, c := range a.Conflicts {
		if IsBlocking(c.Type) || (c.Type == conflicts.Unqualified && e.qualificationBlocking) {
			out = append(out, c)
		}
	}
	return out
}

// IsBlocking reports whether a conflict type always rejects a create.
func IsBlocking(t conflicts.Type) bool {
	switch t {
	case conflicts.PositionTaken, conflicts.RefereeOnGame, conflicts.TimeOverlap, conflicts.Capacity:
		return true
	}
	return false
}

func (e *Engine) countConflicts(a *conflicts.Analysis) {
	for _, c := range a.Conflicts {
		e.metrics.ConflictDetected(string(c.Type))
	}
}

// syncGameStatus recomputes the game status from its active assignments.
func syncGameStatus(ctx context.Context, tx store.Store, gameID string) (models.GameStatus, error) {
	game, err := tx.FindGame(ctx, gameID)
	if err != nil {
		return "", err
	}
	onGame, err := tx.FindAssignmentsByGame(ctx, gameID)
	if err != nil {
		return "", err
	}
	status := models.GameStatusFor(models.CountActive(onGame), game.RefsNeeded)
	if status == game.Status {
		return status, nil
	}
	return status, tx.UpdateGameStatus(ctx, gameID, status)
}

func validateCandidate(c conflicts.Candidate) error {
	var missing []string
	if strings.TrimSpace(c.GameID) == "" {
		missing = append(missing, "game_id")
	}
	if strings.TrimSpace(c.RefereeID) == "" {
		missing = append(missing, "user_id")
	}
	if strings.TrimSpace(c.PositionID) == "" {
		missing = append(missing, "position_id")
	}
	if len(missing) > 0 {
		return apperr.Validation("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}
