// Package conflicts evaluates whether a referee can take a position on a game.
package conflicts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/arnavshah/referee-scheduler-api/pkg/apperr"
	"github.com/arnavshah/referee-scheduler-api/pkg/models"
	"github.com/arnavshah/referee-scheduler-api/pkg/store"
)

// Candidate is a proposed assignment.
type Candidate struct {
	GameID     string `json:"game_id" binding:"required"`
	RefereeID  string `json:"user_id" binding:"required"`
	PositionID string `json:"position_id" binding:"required"`
}

// Type names the rule a conflict comes from.
type Type string

const (
	Unavailable   Type = "referee_unavailable"
	Unqualified   Type = "qualification"
	PositionTaken Type = "position_taken"
	RefereeOnGame Type = "referee_on_game"
	TimeOverlap   Type = "time_overlap"
	Capacity      Type = "capacity"
)

// Conflict is one reason a candidate should not be assigned.
type Conflict struct {
	Type    Type   `json:"type"`
	Message string `json:"message"`
	// AssignmentID and GameID identify the existing assignment the conflict
	// is bound to, when there is one.
	AssignmentID     string            `json:"assignment_id,omitempty"`
	GameID           string            `json:"game_id,omitempty"`
	AllowedDivisions []models.Division `json:"allowed_divisions,omitempty"`
}

// Analysis is the full result of checking a candidate.
type Analysis struct {
	HasConflicts bool       `json:"has_conflicts"`
	Conflicts    []Conflict `json:"conflicts"`
	Warnings     []string   `json:"warnings"`
	IsQualified  bool       `json:"is_qualified"`

	// Entities loaded during the check, for callers that go on to act.
	Game     *models.Game     `json:"-"`
	Referee  *models.Referee  `json:"-"`
	Position *models.Position `json:"-"`
}

func (a *Analysis) add(c Conflict) {
	a.Conflicts = append(a.Conflicts, c)
	a.HasConflicts = true
}

// Detector runs the conflict rules against a store. It never writes.
type Detector struct {
	reader store.Reader
}

// New creates a detector reading from r.
func New(r store.Reader) *Detector {
	return &Detector{reader: r}
}

// Check evaluates every rule for c and returns all conflicts found.
// Missing game, referee or position is an error and stops the check.
func (d *Detector) Check(ctx context.Context, c Candidate) (*Analysis, error) {
	game, err := d.reader.FindGame(ctx, c.GameID)
	if err != nil {
		return nil, apperr.Wrap(err, "load game")
	}
	referee, err := d.reader.FindReferee(ctx, c.RefereeID)
	if err != nil {
		return nil, apperr.Wrap(err, "load referee")
	}
	position, err := d.reader.FindPosition(ctx, c.PositionID)
	if err != nil {
		return nil, apperr.Wrap(err, "load position")
	}

	a := &Analysis{
		Conflicts:   []Conflict{},
		Warnings:    []string{},
		IsQualified: true,
		Game:        game,
		Referee:     referee,
		Position:    position,
	}

	if !referee.Available {
		a.add(Conflict{Type: Unavailable, Message: "referee is not available"})
	}

	if q := Qualification(referee, game); q != nil {
		a.IsQualified = false
		a.add(*q)
	}

	onGame, err := d.reader.FindAssignmentsByGame(ctx, game.ID)
	if err != nil {
		return nil, apperr.Wrap(err, "load game assignments")
	}

	for _, as := range onGame {
		if as.Status.Active() && as.PositionID == position.ID {
			a.add(Conflict{
				Type:         PositionTaken,
				Message:      fmt.Sprintf("position %s is already assigned for this game", position.Name),
				AssignmentID: as.ID,
				GameID:       game.ID,
			})
			break
		}
	}

	schedule, warnings, err := d.schedule(ctx, referee, game, onGame)
	if err != nil {
		return nil, err
	}
	for _, sc := range schedule {
		a.add(sc)
	}
	a.Warnings = append(a.Warnings, warnings...)

	if active := models.CountActive(onGame); active >= game.RefsNeeded {
		a.add(Conflict{
			Type:    Capacity,
			Message: fmt.Sprintf("game already has %d of %d referees assigned", active, game.RefsNeeded),
			GameID:  game.ID,
		})
	}

	return a, nil
}

// ScheduleConflicts returns the referee-on-game and time-overlap conflicts
// the referee would have on game. onGame are the game's assignments.
func (d *Detector) ScheduleConflicts(ctx context.Context, referee *models.Referee, game *models.Game, onGame []models.Assignment) ([]Conflict, error) {
	conflicts, _, err := d.schedule(ctx, referee, game, onGame)
	return conflicts, err
}

func (d *Detector) schedule(ctx context.Context, referee *models.Referee, game *models.Game, onGame []models.Assignment) ([]Conflict, []string, error) {
	var conflicts []Conflict
	for _, as := range onGame {
		if as.Status.Active() && as.RefereeID == referee.ID {
			conflicts = append(conflicts, Conflict{
				Type:         RefereeOnGame,
				Message:      "referee is already assigned to this game",
				AssignmentID: as.ID,
				GameID:       game.ID,
			})
			break
		}
	}

	sameDay, err := d.reader.FindAssignmentsByRefereeAndDate(ctx, referee.ID, game.StartsAt)
	if err != nil {
		return nil, nil, apperr.Wrap(err, "load referee schedule")
	}

	var warnings []string
	start, end := game.Window()
	for _, as := range sameDay {
		other := as.Game
		if !as.Status.Active() || other == nil || other.ID == game.ID || other.Date() != game.Date() {
			continue
		}
		oStart, oEnd := other.Window()
		if Overlap(start, end, oStart, oEnd) {
			conflicts = append(conflicts, Conflict{
				Type: TimeOverlap,
				Message: fmt.Sprintf("referee is already assigned to a game at %s (%s) that overlaps this one",
					oStart.Format(models.ClockLayout), other.Location),
				AssignmentID: as.ID,
				GameID:       other.ID,
			})
			continue
		}
		warnings = append(warnings, fmt.Sprintf("referee also officiates at %s (%s) on this date",
			oStart.Format(models.ClockLayout), other.Location))
	}
	return conflicts, warnings, nil
}

// Qualification returns a conflict when referee may not officiate game.
func Qualification(referee *models.Referee, game *models.Game) *Conflict {
	if referee.Level == nil {
		return &Conflict{Type: Unqualified, Message: "referee has no level assigned"}
	}
	if referee.Level.Allows(game.Level) {
		return nil
	}
	allowed := make([]string, len(referee.Level.AllowedDivisions))
	for i, d := range referee.Level.AllowedDivisions {
		allowed[i] = string(d)
	}
	return &Conflict{
		Type: Unqualified,
		Message: fmt.Sprintf("referee level %s is not qualified for %s games (allowed: %s)",
			referee.Level.Name, game.Level, strings.Join(allowed, ", ")),
		AllowedDivisions: referee.Level.AllowedDivisions,
	}
}

// Overlap checks if two closed-open time ranges intersect
func Overlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
