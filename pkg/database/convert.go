package database

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/arnavshah/referee-scheduler-api/pkg/models"
	"gorm.io/datatypes"
)

// Conversions between rows and domain models. JSON columns are parsed here
// and nowhere else.

func levelFromRow(r *LevelRow) (*models.Level, error) {
	var raw []string
	if len(r.AllowedDivisions) > 0 {
		if err := json.Unmarshal(r.AllowedDivisions, &raw); err != nil {
			return nil, fmt.Errorf("level %s: allowed_divisions: %w", r.ID, err)
		}
	}
	divisions := make([]models.Division, 0, len(raw))
	for _, d := range raw {
		if d = strings.TrimSpace(d); d != "" {
			divisions = append(divisions, models.Division(d))
		}
	}
	return &models.Level{
		ID:               r.ID,
		Name:             r.Name,
		WagePerGame:      r.WagePerGame,
		AllowedDivisions: divisions,
	}, nil
}

func levelRow(l *models.Level) (*LevelRow, error) {
	divisions := make([]string, len(l.AllowedDivisions))
	for i, d := range l.AllowedDivisions {
		divisions[i] = string(d)
	}
	raw, err := json.Marshal(divisions)
	if err != nil {
		return nil, err
	}
	return &LevelRow{
		ID:               l.ID,
		Name:             l.Name,
		WagePerGame:      l.WagePerGame,
		AllowedDivisions: datatypes.JSON(raw),
	}, nil
}

func refereeFromRow(r *RefereeRow) (*models.Referee, error) {
	ref := &models.Referee{
		ID:        r.ID,
		Name:      r.Name,
		Email:     r.Email,
		Available: r.IsAvailable,
	}
	if r.Level != nil {
		level, err := levelFromRow(r.Level)
		if err != nil {
			return nil, err
		}
		ref.Level = level
	}
	return ref, nil
}

func gameFromRow(r *GameRow) (*models.Game, error) {
	startsAt, err := time.ParseInLocation(models.DateLayout+" "+models.ClockLayout, r.GameDate+" "+r.GameTime, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("game %s: bad date or time: %w", r.ID, err)
	}
	return &models.Game{
		ID:               r.ID,
		StartsAt:         startsAt,
		Duration:         time.Duration(r.DurationMinutes) * time.Minute,
		Location:         r.Location,
		Level:            models.Division(r.Level),
		PayRate:          r.PayRate,
		WageMultiplier:   r.WageMultiplier,
		MultiplierReason: r.MultiplierReason,
		RefsNeeded:       r.RefsNeeded,
		Status:           models.GameStatus(r.Status),
	}, nil
}

func gameRow(g *models.Game) *GameRow {
	d := g.Duration
	if d <= 0 {
		d = models.DefaultGameDuration
	}
	status := g.Status
	if status == "" {
		status = models.GameUnassigned
	}
	start := g.StartsAt.UTC()
	return &GameRow{
		ID:               g.ID,
		GameDate:         start.Format(models.DateLayout),
		GameTime:         start.Format(models.ClockLayout),
		DurationMinutes:  int(d / time.Minute),
		Location:         g.Location,
		Level:            string(g.Level),
		PayRate:          g.PayRate,
		WageMultiplier:   g.WageMultiplier,
		MultiplierReason: g.MultiplierReason,
		RefsNeeded:       g.RefsNeeded,
		Status:           string(status),
	}
}

func assignmentFromRow(r *AssignmentRow) (*models.Assignment, error) {
	a := &models.Assignment{
		ID:             r.ID,
		GameID:         r.GameID,
		RefereeID:      r.UserID,
		PositionID:     r.PositionID,
		Status:         models.AssignmentStatus(r.Status),
		CalculatedWage: r.CalculatedWage,
		AssignedBy:     r.AssignedBy,
		AssignedAt:     r.AssignedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.Game != nil {
		g, err := gameFromRow(r.Game)
		if err != nil {
			return nil, err
		}
		a.Game = g
	}
	return a, nil
}

func assignmentsFromRows(rows []AssignmentRow) ([]models.Assignment, error) {
	out := make([]models.Assignment, 0, len(rows))
	for i := range rows {
		a, err := assignmentFromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, nil
}

func assignmentRow(a *models.Assignment) *AssignmentRow {
	return &AssignmentRow{
		ID:             a.ID,
		GameID:         a.GameID,
		UserID:         a.RefereeID,
		PositionID:     a.PositionID,
		Status:         string(a.Status),
		CalculatedWage: a.CalculatedWage,
		AssignedBy:     a.AssignedBy,
		AssignedAt:     a.AssignedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func patternFromRow(r *PatternRow) *models.AssignmentPattern {
	p := &models.AssignmentPattern{
		ID: r.ID,
		PatternKey: models.PatternKey{
			RefereeID: r.RefereeID,
			DayOfWeek: r.DayOfWeek,
			Location:  r.Location,
			TimeSlot:  models.TimeSlot(r.TimeSlot),
			Level:     models.Division(r.Level),
		},
		FrequencyCount:       r.FrequencyCount,
		CompletedAssignments: r.CompletedAssignments,
		DeclinedAssignments:  r.DeclinedAssignments,
		SuccessRate:          r.SuccessRate,
		TimesApplied:         r.TimesApplied,
		LastAppliedAt:        r.LastAppliedAt,
		LastRefreshedAt:      r.LastRefreshedAt,
	}
	p.FirstAssigned, _ = time.ParseInLocation(models.DateLayout, r.FirstAssigned, time.UTC)
	p.LastAssigned, _ = time.ParseInLocation(models.DateLayout, r.LastAssigned, time.UTC)
	return p
}

func patternRow(p *models.AssignmentPattern) *PatternRow {
	return &PatternRow{
		ID:                   p.ID,
		RefereeID:            p.RefereeID,
		DayOfWeek:            p.DayOfWeek,
		Location:             p.Location,
		TimeSlot:             string(p.TimeSlot),
		Level:                string(p.Level),
		FrequencyCount:       p.FrequencyCount,
		CompletedAssignments: p.CompletedAssignments,
		DeclinedAssignments:  p.DeclinedAssignments,
		SuccessRate:          p.SuccessRate,
		FirstAssigned:        p.FirstAssigned.Format(models.DateLayout),
		LastAssigned:         p.LastAssigned.Format(models.DateLayout),
		TimesApplied:         p.TimesApplied,
		LastAppliedAt:        p.LastAppliedAt,
		LastRefreshedAt:      p.LastRefreshedAt.UTC(),
	}
}
