package assignment

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/arnavshah/referee-scheduler-api/pkg/database"
	"github.com/arnavshah/referee-scheduler-api/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var matchDay = time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC)

func kickoff(hour, minute int) time.Time {
	return matchDay.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

type world struct {
	t    *testing.T
	ctx  context.Context
	repo *database.Repository

	junior *models.Level
	senior *models.Level
	ref    *models.Position
	linesA *models.Position
	linesB *models.Position
}

func newWorld(t *testing.T) *world {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "referees.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	w := &world{t: t, ctx: context.Background(), repo: database.NewRepository(db)}
	w.junior = w.level("Junior", "40", "U11", "U13")
	w.senior = w.level("Senior", "75", "U17", "Adult")
	w.ref = w.position("Referee")
	w.linesA = w.position("Assistant 1")
	w.linesB = w.position("Assistant 2")
	return w
}

func (w *world) level(name, wagePerGame string, divisions ...models.Division) *models.Level {
	l := &models.Level{
		Name:             name,
		WagePerGame:      decimal.RequireFromString(wagePerGame),
		AllowedDivisions: divisions,
	}
	require.NoError(w.t, w.repo.SaveLevel(w.ctx, l))
	return l
}

func (w *world) position(name string) *models.Position {
	p := &models.Position{Name: name}
	require.NoError(w.t, w.repo.SavePosition(w.ctx, p))
	return p
}

func (w *world) referee(name string, level *models.Level, available bool) *models.Referee {
	r := &models.Referee{Name: name, Email: name + "@example.com", Level: level, Available: available}
	require.NoError(w.t, w.repo.SaveReferee(w.ctx, r))
	return r
}

func (w *world) game(startsAt time.Time, location string, level models.Division, refsNeeded int) *models.Game {
	g := &models.Game{
		StartsAt:   startsAt,
		Location:   location,
		Level:      level,
		PayRate:    decimal.NewFromInt(30),
		RefsNeeded: refsNeeded,
	}
	require.NoError(w.t, w.repo.SaveGame(w.ctx, g))
	return g
}

// assign stores an assignment directly, bypassing the engine.
func (w *world) assign(g *models.Game, r *models.Referee, p *models.Position, status models.AssignmentStatus) *models.Assignment {
	a := &models.Assignment{
		GameID:         g.ID,
		RefereeID:      r.ID,
		PositionID:     p.ID,
		Status:         status,
		CalculatedWage: decimal.NewFromInt(40),
		AssignedAt:     time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	require.NoError(w.t, w.repo.InsertAssignment(w.ctx, a))
	return a
}

func (w *world) gameStatus(id string) models.GameStatus {
	g, err := w.repo.FindGame(w.ctx, id)
	require.NoError(w.t, err)
	return g.Status
}
