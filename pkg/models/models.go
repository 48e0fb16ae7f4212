package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultGameDuration is the officiating window used when a game has none.
const DefaultGameDuration = 2 * time.Hour

// DateLayout is the calendar-date format used for game dates.
const DateLayout = "2006-01-02"

// ClockLayout is the wall-clock format used for game start times.
const ClockLayout = "15:04"

// GameStatus is derived from the number of active assignments on a game.
type GameStatus string

const (
	GameUnassigned GameStatus = "unassigned"
	GameAssigned   GameStatus = "assigned"
)

// GameStatusFor returns the status a game with the given number of
// non-declined assignments should have.
func GameStatusFor(active, refsNeeded int) GameStatus {
	if active >= refsNeeded {
		return GameAssigned
	}
	return GameUnassigned
}

// AssignmentStatus is the lifecycle state of an assignment.
type AssignmentStatus string

const (
	StatusPending   AssignmentStatus = "pending"
	StatusAccepted  AssignmentStatus = "accepted"
	StatusDeclined  AssignmentStatus = "declined"
	StatusCompleted AssignmentStatus = "completed"
)

// ParseAssignmentStatus validates s against the known statuses.
func ParseAssignmentStatus(s string) (AssignmentStatus, bool) {
	switch st := AssignmentStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusAccepted, StatusDeclined, StatusCompleted:
		return st, true
	default:
		return "", false
	}
}

// Active reports whether the assignment occupies its slot.
func (s AssignmentStatus) Active() bool { return s != StatusDeclined }

// Division is a competitive level a game is played at, e.g. "U13".
type Division string

// Game represents a fixture that needs officials
type Game struct {
	ID               string              `json:"id"`
	StartsAt         time.Time           `json:"starts_at"`
	Duration         time.Duration       `json:"duration"`
	Location         string              `json:"location"`
	Level            Division            `json:"level"`
	PayRate          decimal.Decimal     `json:"pay_rate"`
	WageMultiplier   decimal.NullDecimal `json:"wage_multiplier"`
	MultiplierReason string              `json:"multiplier_reason,omitempty"`
	RefsNeeded       int                 `json:"refs_needed"`
	Status           GameStatus          `json:"status"`
}

// Window returns the closed-open interval [start, end) the game occupies.
func (g *Game) Window() (time.Time, time.Time) {
	d := g.Duration
	if d <= 0 {
		d = DefaultGameDuration
	}
	return g.StartsAt, g.StartsAt.Add(d)
}

// Date returns the calendar date of the game.
func (g *Game) Date() string { return g.StartsAt.Format(DateLayout) }

// Position represents an officiating role on a game
type Position struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Level is a referee qualification grade.
type Level struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	WagePerGame      decimal.Decimal `json:"wage_per_game"`
	AllowedDivisions []Division      `json:"allowed_divisions"`
}

// Allows reports whether the level may officiate games of division d.
func (l *Level) Allows(d Division) bool {
	for _, a := range l.AllowedDivisions {
		if strings.EqualFold(string(a), string(d)) {
			return true
		}
	}
	return false
}

// Referee represents an official who can be assigned to games
type Referee struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Available bool   `json:"is_available"`
	Level     *Level `json:"level,omitempty"`
}

// BaseWage returns the per-game wage for the referee, falling back to the
// game's pay rate when the referee has no level.
func (r *Referee) BaseWage(g *Game) decimal.Decimal {
	if r.Level != nil {
		return r.Level.WagePerGame
	}
	return g.PayRate
}

// Assignment represents a referee-game-position binding
type Assignment struct {
	ID             string           `json:"id"`
	GameID         string           `json:"game_id"`
	RefereeID      string           `json:"user_id"`
	PositionID     string           `json:"position_id"`
	Status         AssignmentStatus `json:"status"`
	CalculatedWage decimal.Decimal  `json:"calculated_wage"`
	AssignedBy     string           `json:"assigned_by,omitempty"`
	AssignedAt     time.Time        `json:"assigned_at"`
	UpdatedAt      time.Time        `json:"updated_at"`

	// Game is populated by queries that join the owning game.
	Game *Game `json:"game,omitempty"`
}

// CountActive returns how many assignments are not declined.
func CountActive(assignments []Assignment) int {
	n := 0
	for _, a := range assignments {
		if a.Status.Active() {
			n++
		}
	}
	return n
}
