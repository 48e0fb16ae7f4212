// Package patterns mines recurring assignment slots from history and
// projects them onto upcoming games.
package patterns

import (
	"sort"
	"time"

	"github.com/arnavshah/referee-scheduler-api/pkg/models"
	"github.com/shopspring/decimal"
)

type aggregate struct {
	frequency int
	completed int
	declined  int
	first     time.Time
	last      time.Time
}

// Mine groups history by pattern key and keeps keys seen at least
// minFrequency times. Output is sorted by key so repeated runs upsert in the
// same order.
func Mine(history []models.HistoricAssignment, minFrequency int, refreshedAt time.Time) []models.AssignmentPattern {
	if minFrequency < 1 {
		minFrequency = 1
	}

	groups := make(map[models.PatternKey]*aggregate)
	for i := range history {
		h := &history[i]
		key := models.KeyOf(h.RefereeID, &h.Game)
		date := h.Game.StartsAt.UTC().Truncate(24 * time.Hour)

		agg, ok := groups[key]
		if !ok {
			agg = &aggregate{first: date, last: date}
			groups[key] = agg
		}
		agg.frequency++
		switch h.Status {
		case models.StatusCompleted:
			agg.completed++
		case models.StatusDeclined:
			agg.declined++
		}
		if date.Before(agg.first) {
			agg.first = date
		}
		if date.After(agg.last) {
			agg.last = date
		}
	}

	out := make([]models.AssignmentPattern, 0, len(groups))
	for key, agg := range groups {
		if agg.frequency < minFrequency {
			continue
		}
		out = append(out, models.AssignmentPattern{
			PatternKey:           key,
			FrequencyCount:       agg.frequency,
			CompletedAssignments: agg.completed,
			DeclinedAssignments:  agg.declined,
			SuccessRate:          SuccessRate(agg.completed, agg.frequency),
			FirstAssigned:        agg.first,
			LastAssigned:         agg.last,
			LastRefreshedAt:      refreshedAt.UTC(),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].PatternKey, out[j].PatternKey
		switch {
		case a.RefereeID != b.RefereeID:
			return a.RefereeID < b.RefereeID
		case a.DayOfWeek != b.DayOfWeek:
			return a.DayOfWeek < b.DayOfWeek
		case a.Location != b.Location:
			return a.Location < b.Location
		case a.TimeSlot != b.TimeSlot:
			return a.TimeSlot < b.TimeSlot
		default:
			return a.Level < b.Level
		}
	})
	return out
}

// SuccessRate returns completed / frequency * 100 rounded to two places.
func SuccessRate(completed, frequency int) decimal.Decimal {
	if frequency <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(completed) * 100).DivRound(decimal.NewFromInt(int64(frequency)), 2)
}

// Matches reports whether g falls in the slot described by key, ignoring
// the referee.
func Matches(key models.PatternKey, g *models.Game) bool {
	k := models.KeyOf(key.RefereeID, g)
	return k == key
}
