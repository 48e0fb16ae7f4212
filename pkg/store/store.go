// Package store declares the persistence contracts the assignment core
// consumes. Implementations live in pkg/database.
//
// Lookups of a single entity return an apperr NotFound error when the row
// does not exist. List queries return assignments in every status; callers
// decide which ones are active.
package store

import (
	"context"
	"time"

	"github.com/arnavshah/referee-scheduler-api/pkg/models"
)

// Reader is the read side the conflict detector needs.
type Reader interface {
	FindGame(ctx context.Context, id string) (*models.Game, error)
	FindReferee(ctx context.Context, id string) (*models.Referee, error)
	FindPosition(ctx context.Context, id string) (*models.Position, error)
	FindAssignmentsByGame(ctx context.Context, gameID string) ([]models.Assignment, error)
	// FindAssignmentsByRefereeAndDate returns the referee's assignments on
	// games played on date, with Assignment.Game populated.
	FindAssignmentsByRefereeAndDate(ctx context.Context, refereeID string, date time.Time) ([]models.Assignment, error)
}

// Store is the full assignment persistence contract.
type Store interface {
	Reader

	FindAssignment(ctx context.Context, id string) (*models.Assignment, error)
	ListReferees(ctx context.Context) ([]models.Referee, error)
	ListPositions(ctx context.Context) ([]models.Position, error)

	// LockGame and LockReferee take a row lock held until the surrounding
	// transaction ends. Outside a transaction they behave like the Find calls.
	LockGame(ctx context.Context, id string) (*models.Game, error)
	LockReferee(ctx context.Context, id string) (*models.Referee, error)

	// InsertAssignment fails with an apperr Conflict when another active
	// assignment already holds the same (game, position).
	InsertAssignment(ctx context.Context, a *models.Assignment) error
	UpdateAssignment(ctx context.Context, a *models.Assignment) error
	// DeleteAssignment reports whether a row was removed.
	DeleteAssignment(ctx context.Context, id string) (bool, error)
	UpdateGameStatus(ctx context.Context, gameID string, status models.GameStatus) error

	// Transaction runs fn against a Store bound to a single transaction,
	// committing when fn returns nil.
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

// PatternFilter narrows a pattern listing. Zero values do not filter.
type PatternFilter struct {
	RefereeID      string
	DayOfWeek      string
	Location       string
	Level          models.Division
	TimeSlot       models.TimeSlot
	MinFrequency   int
	MinSuccessRate float64
	Limit          int
	// StartDate and EndDate keep patterns whose first..last assigned range
	// overlaps the window. Only the calendar date is used.
	StartDate time.Time
	EndDate   time.Time
}

// PatternStore persists mined assignment patterns.
type PatternStore interface {
	// FindHistory returns completed and declined assignments on games
	// played on or after since.
	FindHistory(ctx context.Context, since time.Time) ([]models.HistoricAssignment, error)
	// UpsertPattern inserts p or refreshes the row with the same key.
	UpsertPattern(ctx context.Context, p *models.AssignmentPattern) error
	// DeleteStalePatterns removes patterns last refreshed before cutoff.
	DeleteStalePatterns(ctx context.Context, cutoff time.Time) (int64, error)
	DeletePattern(ctx context.Context, id string) error
	FindPattern(ctx context.Context, id string) (*models.AssignmentPattern, error)
	ListPatterns(ctx context.Context, f PatternFilter) ([]models.AssignmentPattern, error)
	CountPatterns(ctx context.Context) (int64, error)
	// RecordPatternUsage adds n to the pattern's usage counter.
	RecordPatternUsage(ctx context.Context, id string, n int, at time.Time) error
}
