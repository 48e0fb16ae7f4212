package patterns

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/arnavshah/referee-scheduler-api/pkg/apperr"
	"github.com/arnavshah/referee-scheduler-api/pkg/assignment"
	"github.com/arnavshah/referee-scheduler-api/pkg/audit"
	"github.com/arnavshah/referee-scheduler-api/pkg/conflicts"
	"github.com/arnavshah/referee-scheduler-api/pkg/models"
)

var errNoRunner = errors.New("no task runner configured")

// PatternView is a pattern with a readable summary.
type PatternView struct {
	models.AssignmentPattern
	Description string `json:"description"`
}

// Describe renders a key like "Saturday Morning at North Field (U13)".
func Describe(k models.PatternKey) string {
	return fmt.Sprintf("%s %s at %s (%s)", k.DayOfWeek, k.TimeSlot, k.Location, k.Level)
}

// GameConflicts lists what blocked a game.
type GameConflicts struct {
	GameID    string               `json:"game_id"`
	Conflicts []conflicts.Conflict `json:"conflicts"`
}

// SkippedGame is a candidate game outside the pattern's slot.
type SkippedGame struct {
	GameID string `json:"game_id"`
	Reason string `json:"reason"`
}

// GameError is a game the pattern could not be applied to.
type GameError struct {
	GameID string      `json:"game_id"`
	Error  string      `json:"error"`
	Code   apperr.Kind `json:"code"`
}

func gameError(gameID string, err error) GameError {
	return GameError{GameID: gameID, Error: apperr.MessageOf(err), Code: apperr.KindOf(err)}
}

type ApplyResult struct {
	PatternID           string                    `json:"pattern_id"`
	Created             []assignment.CreateResult `json:"created"`
	ConflictsOverridden int                       `json:"conflictsOverridden"`
	Conflicts           []GameConflicts           `json:"conflicts"`
	Skipped             []SkippedGame             `json:"skipped"`
	Errors              []GameError               `json:"errors"`
}

// Apply assigns the pattern's referee to every candidate game in the
// pattern's slot. Games with blocking conflicts are reported and left
// alone unless override is set, in which case the assignments behind the
// conflicts are replaced in the same transaction as the create. Conflicts
// with no assignment behind them cannot be overridden.
func (a *Analyzer) Apply(ctx context.Context, actor, patternID string, gameIDs []string, override bool) (*ApplyResult, error) {
	if strings.TrimSpace(patternID) == "" {
		return nil, apperr.Validation("pattern_id is required")
	}
	if len(gameIDs) == 0 {
		return nil, apperr.Validation("game_ids must contain at least one game")
	}
	pattern, err := a.patterns.FindPattern(ctx, patternID)
	if err != nil {
		return nil, apperr.Wrap(err, "load pattern")
	}
	positions, err := a.games.ListPositions(ctx)
	if err != nil {
		return nil, apperr.Wrap(err, "list positions")
	}
	if len(positions) == 0 {
		return nil, apperr.Validation("no positions are configured")
	}

	res := &ApplyResult{
		PatternID: pattern.ID,
		Created:   []assignment.CreateResult{},
		Conflicts: []GameConflicts{},
		Skipped:   []SkippedGame{},
		Errors:    []GameError{},
	}

	seen := make(map[string]bool)
	for _, gameID := range gameIDs {
		if seen[gameID] {
			continue
		}
		seen[gameID] = true

		game, err := a.games.FindGame(ctx, gameID)
		if err != nil {
			res.Errors = append(res.Errors, gameError(gameID, err))
			continue
		}
		if !Matches(pattern.PatternKey, game) {
			res.Skipped = append(res.Skipped, SkippedGame{
				GameID: gameID,
				Reason: fmt.Sprintf("game is not in the pattern slot %s", Describe(pattern.PatternKey)),
			})
			continue
		}
		created, overridden, err := a.applyOne(ctx, actor, pattern.RefereeID, game, positions, override, res)
		res.ConflictsOverridden += overridden
		if err != nil {
			res.Errors = append(res.Errors, gameError(gameID, err))
			continue
		}
		if created != nil {
			res.Created = append(res.Created, *created)
		}
	}

	if n := len(res.Created); n > 0 {
		if err := a.patterns.RecordPatternUsage(ctx, pattern.ID, n, a.now()); err != nil {
			a.log.Error().Err(err).Str("pattern_id", pattern.ID).Msg("failed to record pattern usage")
		}
		a.metrics.PatternsApplied(n)
		a.audit.Record(ctx, audit.Event{
			EventType: audit.PatternApplied,
			EntityID:  pattern.ID,
			ActorID:   actor,
			Metadata: map[string]any{
				"created":              n,
				"conflicts_overridden": res.ConflictsOverridden,
			},
		})
	}
	return res, nil
}

// applyOne returns a nil result and nil error when the game was reported
// as conflicted or skipped.
func (a *Analyzer) applyOne(ctx context.Context, actor, refereeID string, game *models.Game, positions []models.Position, override bool, res *ApplyResult) (*assignment.CreateResult, int, error) {
	onGame, err := a.games.FindAssignmentsByGame(ctx, game.ID)
	if err != nil {
		return nil, 0, err
	}
	candidate := conflicts.Candidate{
		GameID:     game.ID,
		RefereeID:  refereeID,
		PositionID: firstFreePosition(positions, onGame),
	}

	analysis, err := a.engine.Check(ctx, candidate)
	if err != nil {
		return nil, 0, err
	}
	blocking := a.engine.BlockingConflicts(analysis)
	if len(blocking) == 0 {
		created, err := a.engine.CreateChecked(ctx, actor, candidate, analysis)
		return created, 0, err
	}
	if hasType(blocking, conflicts.RefereeOnGame) {
		res.Skipped = append(res.Skipped, SkippedGame{GameID: game.ID, Reason: "referee is already assigned to this game"})
		return nil, 0, nil
	}
	if !override {
		res.Conflicts = append(res.Conflicts, GameConflicts{GameID: game.ID, Conflicts: blocking})
		return nil, 0, nil
	}

	for _, c := range blocking {
		if c.AssignmentID == "" && c.Type != conflicts.Capacity {
			return nil, 0, apperr.Conflict("conflict cannot be overridden: "+c.Message, c)
		}
	}

	var displace []string
	freed := false
	for _, c := range blocking {
		if c.AssignmentID != "" {
			displace = append(displace, c.AssignmentID)
			freed = freed || c.GameID == game.ID
		}
	}
	if !freed && hasType(blocking, conflicts.Capacity) {
		// Displace the holder of the first occupied position and take it over.
		holder := firstHolder(positions, onGame)
		if holder == nil {
			return nil, 0, apperr.Conflict("game has no referee slots", analysis)
		}
		displace = append(displace, holder.ID)
		candidate.PositionID = holder.PositionID
	}

	replaced, err := a.engine.Replace(ctx, actor, candidate, analysis, displace)
	if err != nil {
		return nil, 0, err
	}
	ids := make([]string, len(replaced.Removed))
	for i, r := range replaced.Removed {
		ids[i] = r.ID
	}
	a.log.Info().
		Str("game_id", game.ID).
		Strs("removed", ids).
		Msg("pattern override removed assignments")
	return &replaced.CreateResult, len(replaced.Removed), nil
}

// firstFreePosition returns the first position in order with no active
// assignment, or the first position when all are taken.
func firstFreePosition(positions []models.Position, onGame []models.Assignment) string {
	taken := make(map[string]bool)
	for _, as := range onGame {
		if as.Status.Active() {
			taken[as.PositionID] = true
		}
	}
	for _, p := range positions {
		if !taken[p.ID] {
			return p.ID
		}
	}
	return positions[0].ID
}

// firstHolder returns the active assignment on the earliest position.
func firstHolder(positions []models.Position, onGame []models.Assignment) *models.Assignment {
	for _, p := range positions {
		for i := range onGame {
			if onGame[i].Status.Active() && onGame[i].PositionID == p.ID {
				return &onGame[i]
			}
		}
	}
	return nil
}

func hasType(cs []conflicts.Conflict, t conflicts.Type) bool {
	for _, c := range cs {
		if c.Type == t {
			return true
		}
	}
	return false
}
