package patterns

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/arnavshah/referee-scheduler-api/pkg/apperr"
	"github.com/arnavshah/referee-scheduler-api/pkg/assignment"
	"github.com/arnavshah/referee-scheduler-api/pkg/audit"
	"github.com/arnavshah/referee-scheduler-api/pkg/database"
	"github.com/arnavshah/referee-scheduler-api/pkg/metrics"
	"github.com/arnavshah/referee-scheduler-api/pkg/models"
	"github.com/arnavshah/referee-scheduler-api/pkg/store"
	"github.com/arnavshah/referee-scheduler-api/pkg/tasks"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clock is a settable time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	t     *testing.T
	ctx   context.Context
	repo  *database.Repository
	clock *clock
	level *models.Level
	pos   []*models.Position
	ana   *models.Referee
	ben   *models.Referee
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "patterns.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		repo:  database.NewRepository(db),
		clock: &clock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
	}
	f.level = &models.Level{Name: "Junior", WagePerGame: decimal.NewFromInt(40), AllowedDivisions: []models.Division{"U13"}}
	require.NoError(t, f.repo.SaveLevel(f.ctx, f.level))
	for _, name := range []string{"Referee", "Assistant"} {
		p := &models.Position{Name: name}
		require.NoError(t, f.repo.SavePosition(f.ctx, p))
		f.pos = append(f.pos, p)
	}
	f.ana = f.referee("ana")
	f.ben = f.referee("ben")
	return f
}

func (f *fixture) referee(name string) *models.Referee {
	r := &models.Referee{Name: name, Level: f.level, Available: true}
	require.NoError(f.t, f.repo.SaveReferee(f.ctx, r))
	return r
}

func (f *fixture) game(startsAt time.Time, location string, refsNeeded int) *models.Game {
	g := &models.Game{StartsAt: startsAt, Location: location, Level: "U13", PayRate: decimal.NewFromInt(30), RefsNeeded: refsNeeded}
	require.NoError(f.t, f.repo.SaveGame(f.ctx, g))
	return g
}

func (f *fixture) assign(g *models.Game, r *models.Referee, p *models.Position, status models.AssignmentStatus) *models.Assignment {
	a := &models.Assignment{
		GameID:         g.ID,
		RefereeID:      r.ID,
		PositionID:     p.ID,
		Status:         status,
		CalculatedWage: decimal.NewFromInt(40),
		AssignedAt:     g.StartsAt.AddDate(0, 0, -7),
	}
	require.NoError(f.t, f.repo.InsertAssignment(f.ctx, a))
	return a
}

// seedHistory gives ana five Saturday-morning games at North Field, three
// completed and two declined.
func (f *fixture) seedHistory() {
	statuses := []models.AssignmentStatus{
		models.StatusCompleted, models.StatusDeclined, models.StatusCompleted,
		models.StatusDeclined, models.StatusCompleted,
	}
	for i, st := range statuses {
		g := f.game(saturday(i, 10), "North Field", 1)
		f.assign(g, f.ana, f.pos[0], st)
	}
	// Pending work is not history.
	f.assign(f.game(saturday(0, 10), "North Field", 1), f.ben, f.pos[0], models.StatusPending)
	// Outside the six month window.
	f.assign(f.game(saturday(30, 10), "Old Field", 1), f.ben, f.pos[0], models.StatusCompleted)
	f.assign(f.game(saturday(31, 10), "Old Field", 1), f.ben, f.pos[0], models.StatusCompleted)
}

func (f *fixture) analyzer(opts ...Option) (*Analyzer, *assignment.Engine) {
	engine := assignment.New(f.repo, assignment.WithClock(f.clock.Now))
	opts = append([]Option{WithClock(f.clock.Now)}, opts...)
	return New(f.repo, f.repo, engine, opts...), engine
}

func TestAnalyze_MinesAndFilters(t *testing.T) {
	f := newFixture(t)
	f.seedHistory()
	a, _ := f.analyzer()

	found, err := a.Analyze(f.ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, found, 1)

	p := found[0]
	assert.Equal(t, f.ana.ID, p.RefereeID)
	assert.Equal(t, "Saturday", p.DayOfWeek)
	assert.Equal(t, models.Morning, p.TimeSlot)
	assert.Equal(t, 5, p.FrequencyCount)
	assert.Equal(t, 3, p.CompletedAssignments)
	assert.Equal(t, 2, p.DeclinedAssignments)
	assert.True(t, decimal.NewFromInt(60).Equal(p.SuccessRate), "got %s", p.SuccessRate)
	assert.Equal(t, "Saturday Morning at North Field (U13)", p.Description)

	found, err = a.Analyze(f.ctx, Filter{MinSuccessRate: 75})
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = a.Analyze(f.ctx, Filter{RefereeID: f.ben.ID})
	require.NoError(t, err)
	assert.Empty(t, found)

	_, err = a.Analyze(f.ctx, Filter{MinSuccessRate: 120})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestEnsureFresh_FollowsTTL(t *testing.T) {
	f := newFixture(t)
	a, _ := f.analyzer(WithTTL(24 * time.Hour))

	assert.True(t, a.Stale())
	refreshed, err := a.EnsureFresh(f.ctx)
	require.NoError(t, err)
	assert.True(t, refreshed)
	assert.Equal(t, f.clock.Now(), a.LastRefreshedAt())

	f.clock.Advance(23 * time.Hour)
	refreshed, err = a.EnsureFresh(f.ctx)
	require.NoError(t, err)
	assert.False(t, refreshed)

	f.clock.Advance(time.Hour)
	assert.True(t, a.Stale())
	refreshed, err = a.EnsureFresh(f.ctx)
	require.NoError(t, err)
	assert.True(t, refreshed)
}

func TestRefresh_UpsertsAndPurges(t *testing.T) {
	f := newFixture(t)
	f.seedHistory()

	stale := &models.AssignmentPattern{
		PatternKey:      models.PatternKey{RefereeID: f.ben.ID, DayOfWeek: "Monday", Location: "Gone", TimeSlot: models.Evening, Level: "U13"},
		FrequencyCount:  4,
		SuccessRate:     decimal.NewFromInt(50),
		LastRefreshedAt: f.clock.Now().Add(-8 * 24 * time.Hour),
	}
	require.NoError(t, f.repo.UpsertPattern(f.ctx, stale))

	a, _ := f.analyzer()
	res, err := a.Refresh(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, res.HistoryRows)
	assert.Equal(t, 1, res.Upserted)
	assert.Equal(t, int64(1), res.Purged)

	first, err := f.repo.ListPatterns(f.ctx, store.PatternFilter{})
	require.NoError(t, err)
	require.Len(t, first, 1)

	// A second run updates the same row rather than adding one.
	f.clock.Advance(time.Hour)
	_, err = a.Refresh(f.ctx)
	require.NoError(t, err)
	second, err := f.repo.ListPatterns(f.ctx, store.PatternFilter{})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.True(t, second[0].LastRefreshedAt.After(first[0].LastRefreshedAt))
}

func minedPattern(t *testing.T, f *fixture, a *Analyzer) models.AssignmentPattern {
	t.Helper()
	found, err := a.Analyze(f.ctx, Filter{RefereeID: f.ana.ID})
	require.NoError(t, err)
	require.Len(t, found, 1)
	return found[0].AssignmentPattern
}

func TestApply_CreatesMatchingGames(t *testing.T) {
	f := newFixture(t)
	f.seedHistory()
	rec := &audit.Recorder{}
	a, _ := f.analyzer(WithAudit(rec))
	p := minedPattern(t, f, a)

	match := f.game(saturday(-1, 10), "North Field", 2)
	afternoon := f.game(saturday(-1, 15), "North Field", 2)
	elsewhere := f.game(saturday(-2, 10), "South Field", 2)

	res, err := a.Apply(f.ctx, "admin", p.ID, []string{match.ID, afternoon.ID, elsewhere.ID, "missing", match.ID}, false)
	require.NoError(t, err)

	require.Len(t, res.Created, 1)
	assert.Equal(t, match.ID, res.Created[0].Assignment.GameID)
	assert.Contains(t, []string{f.pos[0].ID, f.pos[1].ID}, res.Created[0].Assignment.PositionID)
	assert.Len(t, res.Skipped, 2)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, apperr.KindNotFound, res.Errors[0].Code)
	assert.Equal(t, 0, res.ConflictsOverridden)

	stored, err := f.repo.FindPattern(f.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.TimesApplied)
	assert.NotNil(t, stored.LastAppliedAt)
	assert.Contains(t, rec.Types(), audit.PatternApplied)
}

func TestApply_ConflictsReportedOrOverridden(t *testing.T) {
	f := newFixture(t)
	f.seedHistory()
	a, _ := f.analyzer()
	p := minedPattern(t, f, a)

	full := f.game(saturday(-1, 10), "North Field", 1)
	holder := f.assign(full, f.ben, f.pos[0], models.StatusAccepted)

	res, err := a.Apply(f.ctx, "admin", p.ID, []string{full.ID}, false)
	require.NoError(t, err)
	assert.Empty(t, res.Created)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, full.ID, res.Conflicts[0].GameID)

	res, err = a.Apply(f.ctx, "admin", p.ID, []string{full.ID}, true)
	require.NoError(t, err)
	require.Len(t, res.Created, 1)
	assert.Equal(t, 1, res.ConflictsOverridden)
	assert.Equal(t, f.ana.ID, res.Created[0].Assignment.RefereeID)

	_, err = f.repo.FindAssignment(f.ctx, holder.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	onGame, err := f.repo.FindAssignmentsByGame(f.ctx, full.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, models.CountActive(onGame))
}

func TestApply_OverrideTimeOverlap(t *testing.T) {
	f := newFixture(t)
	f.seedHistory()
	a, _ := f.analyzer()
	p := minedPattern(t, f, a)

	target := f.game(saturday(-1, 10), "North Field", 2)
	clash := f.game(saturday(-1, 11), "Side Field", 1)
	busy := f.assign(clash, f.ana, f.pos[0], models.StatusAccepted)

	res, err := a.Apply(f.ctx, "admin", p.ID, []string{target.ID}, true)
	require.NoError(t, err)
	require.Len(t, res.Created, 1)
	assert.Equal(t, 1, res.ConflictsOverridden)

	_, err = f.repo.FindAssignment(f.ctx, busy.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestApply_UnknownPattern(t *testing.T) {
	f := newFixture(t)
	a, _ := f.analyzer()

	_, err := a.Apply(f.ctx, "admin", "missing", []string{"g"}, false)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = a.Apply(f.ctx, "admin", "missing", nil, false)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestSubmitRefresh(t *testing.T) {
	f := newFixture(t)
	f.seedHistory()

	reg := tasks.NewRegistry()
	runner := tasks.NewLocalRunner(reg)
	a, _ := f.analyzer(WithRunner(runner))
	a.Register(reg)

	id, err := a.SubmitRefresh(f.ctx)
	require.NoError(t, err)
	runner.Wait()

	info, err := runner.Status(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, tasks.StateSucceeded, info.State)
	assert.False(t, a.Stale())

	n, err := f.repo.CountPatterns(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSubmitRefresh_NoRunner(t *testing.T) {
	f := newFixture(t)
	a, _ := f.analyzer()
	_, err := a.SubmitRefresh(f.ctx)
	assert.True(t, errors.Is(err, apperr.ErrInternal))
}

func TestAnalyze_DateRange(t *testing.T) {
	f := newFixture(t)
	f.seedHistory()
	a, _ := f.analyzer()

	day := func(s string) time.Time {
		d, err := time.Parse(models.DateLayout, s)
		require.NoError(t, err)
		return d
	}

	found, err := a.Analyze(f.ctx, Filter{StartDate: day("2025-05-01"), EndDate: day("2025-05-31")})
	require.NoError(t, err)
	assert.Len(t, found, 1)

	found, err = a.Analyze(f.ctx, Filter{StartDate: day("2025-05-11")})
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = a.Analyze(f.ctx, Filter{EndDate: day("2025-04-11")})
	require.NoError(t, err)
	assert.Empty(t, found)

	_, err = a.Analyze(f.ctx, Filter{StartDate: day("2025-05-01"), EndDate: day("2025-05-01")})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = a.Analyze(f.ctx, Filter{StartDate: day("2025-05-31"), EndDate: day("2025-05-01")})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestApply_OverrideThatFreesNoSlotKeepsHolders(t *testing.T) {
	f := newFixture(t)
	f.seedHistory()
	spare := &models.Position{Name: "Fourth Official"}
	require.NoError(t, f.repo.SavePosition(f.ctx, spare))
	cat := f.referee("cat")
	a, _ := f.analyzer()
	p := minedPattern(t, f, a)

	// Two active referees on a game that needs one: displacing a single
	// holder still leaves it full.
	crowded := f.game(saturday(-1, 10), "North Field", 1)
	first := f.assign(crowded, f.ben, f.pos[0], models.StatusAccepted)
	second := f.assign(crowded, cat, f.pos[1], models.StatusAccepted)

	res, err := a.Apply(f.ctx, "admin", p.ID, []string{crowded.ID}, true)
	require.NoError(t, err)
	assert.Empty(t, res.Created)
	assert.Equal(t, 0, res.ConflictsOverridden)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, apperr.KindConflict, res.Errors[0].Code)

	for _, held := range []*models.Assignment{first, second} {
		_, err := f.repo.FindAssignment(f.ctx, held.ID)
		assert.NoError(t, err, held.ID)
	}
	onGame, err := f.repo.FindAssignmentsByGame(f.ctx, crowded.ID)
	require.NoError(t, err)
	assert.Len(t, onGame, 2)
}

func TestApply_RefereeAlreadyOnGameIsSkipped(t *testing.T) {
	f := newFixture(t)
	f.seedHistory()
	rec := &audit.Recorder{}
	a, _ := f.analyzer(WithAudit(rec))
	p := minedPattern(t, f, a)

	g := f.game(saturday(-1, 10), "North Field", 2)
	own := f.assign(g, f.ana, f.pos[0], models.StatusAccepted)

	for _, override := range []bool{false, true} {
		res, err := a.Apply(f.ctx, "admin", p.ID, []string{g.ID}, override)
		require.NoError(t, err)
		assert.Empty(t, res.Created)
		assert.Empty(t, res.Conflicts)
		assert.Empty(t, res.Errors)
		assert.Equal(t, 0, res.ConflictsOverridden)
		require.Len(t, res.Skipped, 1)
		assert.Equal(t, g.ID, res.Skipped[0].GameID)
	}

	stored, err := f.repo.FindAssignment(f.ctx, own.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, stored.Status)
	assert.NotContains(t, rec.Types(), audit.AssignmentDeleted)
}

func TestApply_CountsConflictsOnce(t *testing.T) {
	f := newFixture(t)
	f.seedHistory()
	m := metrics.New()
	engine := assignment.New(f.repo, assignment.WithClock(f.clock.Now), assignment.WithMetrics(m))
	a := New(f.repo, f.repo, engine, WithClock(f.clock.Now))
	p := minedPattern(t, f, a)

	f.ana.Available = false
	require.NoError(t, f.repo.SaveReferee(f.ctx, f.ana))
	g := f.game(saturday(-1, 10), "North Field", 2)

	res, err := a.Apply(f.ctx, "admin", p.ID, []string{g.ID}, false)
	require.NoError(t, err)
	require.Len(t, res.Created, 1)
	assert.NotEmpty(t, res.Created[0].Warnings)

	expected := `
# HELP referee_scheduler_conflicts_detected_total Conflicts reported by the detector, by type
# TYPE referee_scheduler_conflicts_detected_total counter
referee_scheduler_conflicts_detected_total{type="referee_unavailable"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"referee_scheduler_conflicts_detected_total"))
}
