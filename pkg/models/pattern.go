package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TimeSlot buckets a game start into part of the day.
type TimeSlot string

const (
	Morning   TimeSlot = "Morning"
	Afternoon TimeSlot = "Afternoon"
	Evening   TimeSlot = "Evening"
)

// TimeSlotOf returns the slot for a start time: Morning before 12:00,
// Afternoon before 17:00, Evening otherwise.
func TimeSlotOf(t time.Time) TimeSlot {
	switch h := t.Hour(); {
	case h < 12:
		return Morning
	case h < 17:
		return Afternoon
	default:
		return Evening
	}
}

// PatternKey identifies a recurring slot for a referee.
type PatternKey struct {
	RefereeID string   `json:"referee_id"`
	DayOfWeek string   `json:"day_of_week"`
	Location  string   `json:"location"`
	TimeSlot  TimeSlot `json:"time_slot"`
	Level     Division `json:"level"`
}

// KeyOf derives the pattern key of a game officiated by refereeID.
func KeyOf(refereeID string, g *Game) PatternKey {
	return PatternKey{
		RefereeID: refereeID,
		DayOfWeek: g.StartsAt.Weekday().String(),
		Location:  g.Location,
		TimeSlot:  TimeSlotOf(g.StartsAt),
		Level:     g.Level,
	}
}

// AssignmentPattern is a derived aggregate of a referee's past assignments
// sharing one PatternKey.
type AssignmentPattern struct {
	ID string `json:"id"`
	PatternKey

	FrequencyCount       int             `json:"frequency_count"`
	CompletedAssignments int             `json:"completed_assignments"`
	DeclinedAssignments  int             `json:"declined_assignments"`
	SuccessRate          decimal.Decimal `json:"success_rate"`
	FirstAssigned        time.Time       `json:"first_assigned"`
	LastAssigned         time.Time       `json:"last_assigned"`

	TimesApplied    int        `json:"times_applied"`
	LastAppliedAt   *time.Time `json:"last_applied_at,omitempty"`
	LastRefreshedAt time.Time  `json:"last_refreshed_at"`
}

// HistoricAssignment is the read model pattern mining consumes.
type HistoricAssignment struct {
	RefereeID string
	Status    AssignmentStatus
	Game      Game
}
