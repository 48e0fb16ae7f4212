package assignment

import (
	"context"
	"strings"

	"github.com/arnavshah/referee-scheduler-api/pkg/apperr"
	"github.com/arnavshah/referee-scheduler-api/pkg/conflicts"
	"github.com/arnavshah/referee-scheduler-api/pkg/models"
)

// AvailableReferee is a qualified, available referee annotated with the
// schedule conflicts they would have on the game.
type AvailableReferee struct {
	models.Referee
	HasConflict bool                 `json:"hasConflict"`
	Conflicts   []conflicts.Conflict `json:"conflicts"`
}

type AvailableSummary struct {
	Total            int `json:"total"`
	WithoutConflicts int `json:"withoutConflicts"`
	WithConflicts    int `json:"withConflicts"`
}

type AvailableResult struct {
	Game     *models.Game       `json:"game"`
	Referees []AvailableReferee `json:"referees"`
	Summary  AvailableSummary   `json:"summary"`
}

// AvailableReferees lists referees who may officiate gameID: available and
// with a level that allows the game's division.
func (e *Engine) AvailableReferees(ctx context.Context, gameID string) (*AvailableResult, error) {
	if strings.TrimSpace(gameID) == "" {
		return nil, apperr.Validation("game_id is required")
	}
	game, err := e.store.FindGame(ctx, gameID)
	if err != nil {
		return nil, apperr.Wrap(err, "load game")
	}
	referees, err := e.store.ListReferees(ctx)
	if err != nil {
		return nil, apperr.Wrap(err, "list referees")
	}
	onGame, err := e.store.FindAssignmentsByGame(ctx, gameID)
	if err != nil {
		return nil, apperr.Wrap(err, "load game assignments")
	}

	res := &AvailableResult{Game: game, Referees: []AvailableReferee{}}
	for i := range referees {
		ref := &referees[i]
		if !ref.Available || ref.Level == nil || !ref.Level.Allows(game.Level) {
			continue
		}
		found, err := e.detector.ScheduleConflicts(ctx, ref, game, onGame)
		if err != nil {
			return nil, err
		}
		if found == nil {
			found = []conflicts.Conflict{}
		}
		res.Referees = append(res.Referees, AvailableReferee{
			Referee:     *ref,
			HasConflict: len(found) > 0,
			Conflicts:   found,
		})
		if len(found) > 0 {
			res.Summary.WithConflicts++
		} else {
			res.Summary.WithoutConflicts++
		}
	}
	res.Summary.Total = len(res.Referees)
	return res, nil
}
