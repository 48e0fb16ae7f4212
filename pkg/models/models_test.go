package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGameStatusFor(t *testing.T) {
	assert.Equal(t, GameUnassigned, GameStatusFor(0, 2))
	assert.Equal(t, GameUnassigned, GameStatusFor(1, 2))
	assert.Equal(t, GameAssigned, GameStatusFor(2, 2))
	assert.Equal(t, GameAssigned, GameStatusFor(0, 0))
}

func TestParseAssignmentStatus(t *testing.T) {
	st, ok := ParseAssignmentStatus(" Accepted ")
	assert.True(t, ok)
	assert.Equal(t, StatusAccepted, st)

	_, ok = ParseAssignmentStatus("cancelled")
	assert.False(t, ok)
}

func TestTimeSlotOf(t *testing.T) {
	at := func(h, m int) time.Time { return time.Date(2024, 5, 4, h, m, 0, 0, time.UTC) }

	assert.Equal(t, Morning, TimeSlotOf(at(0, 0)))
	assert.Equal(t, Morning, TimeSlotOf(at(11, 59)))
	assert.Equal(t, Afternoon, TimeSlotOf(at(12, 0)))
	assert.Equal(t, Afternoon, TimeSlotOf(at(16, 59)))
	assert.Equal(t, Evening, TimeSlotOf(at(17, 0)))
	assert.Equal(t, Evening, TimeSlotOf(at(23, 30)))
}

func TestGameWindowDefaultsToTwoHours(t *testing.T) {
	g := &Game{StartsAt: time.Date(2024, 5, 4, 10, 0, 0, 0, time.UTC)}
	start, end := g.Window()
	assert.Equal(t, 2*time.Hour, end.Sub(start))
	assert.Equal(t, "2024-05-04", g.Date())
}

func TestLevelAllowsIgnoresCase(t *testing.T) {
	l := &Level{AllowedDivisions: []Division{"U13", "u15"}}
	assert.True(t, l.Allows("u13"))
	assert.True(t, l.Allows("U15"))
	assert.False(t, l.Allows("U17"))
}

func TestKeyOf(t *testing.T) {
	g := &Game{
		StartsAt: time.Date(2024, 5, 4, 18, 30, 0, 0, time.UTC), // Saturday
		Location: "Field A",
		Level:    "U13",
	}
	k := KeyOf("ref-1", g)
	assert.Equal(t, PatternKey{RefereeID: "ref-1", DayOfWeek: "Saturday", Location: "Field A", TimeSlot: Evening, Level: "U13"}, k)
}
