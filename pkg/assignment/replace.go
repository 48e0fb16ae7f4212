package assignment

import (
	"context"

	"github.com/arnavshah/referee-scheduler-api/pkg/apperr"
	"github.com/arnavshah/referee-scheduler-api/pkg/audit"
	"github.com/arnavshah/referee-scheduler-api/pkg/conflicts"
	"github.com/arnavshah/referee-scheduler-api/pkg/models"
	"github.com/arnavshah/referee-scheduler-api/pkg/store"
	"github.com/arnavshah/referee-scheduler-api/pkg/wage"
)

// ReplaceResult is the created assignment and the ones it displaced.
type ReplaceResult struct {
	CreateResult
	Removed []models.Assignment `json:"removed"`
}

// Replace deletes the assignments in displace and creates c in one
// transaction. When the deletes would leave c's game without a free slot,
// or c is still blocked once they are gone, nothing is deleted. analysis
// must come from Check on c.
func (e *Engine) Replace(ctx context.Context, actor string, c conflicts.Candidate, analysis *conflicts.Analysis, displace []string) (*ReplaceResult, error) {
	if err := validateCandidate(c); err != nil {
		return nil, err
	}
	if len(displace) == 0 {
		return nil, apperr.Validation("no assignments to displace")
	}

	game, referee := analysis.Game, analysis.Referee
	breakdown, err := wage.Calculate(referee.BaseWage(game), game.WageMultiplier, game.MultiplierReason)
	if err != nil {
		return nil, err
	}
	a := e.newAssignment(actor, c, breakdown)

	var removed []models.Assignment
	var recheck *conflicts.Analysis
	err = e.store.Transaction(ctx, func(tx store.Store) error {
		removed = removed[:0]
		locked, err := tx.LockGame(ctx, c.GameID)
		if err != nil {
			return err
		}
		if _, err := tx.LockReferee(ctx, c.RefereeID); err != nil {
			return err
		}

		onGame, err := tx.FindAssignmentsByGame(ctx, c.GameID)
		if err != nil {
			return err
		}
		seen := make(map[string]bool, len(displace))
		freed := 0
		for _, id := range displace {
			if seen[id] {
				continue
			}
			seen[id] = true
			held, err := tx.FindAssignment(ctx, id)
			if err != nil {
				return err
			}
			if held.GameID == c.GameID && held.Status.Active() {
				freed++
			}
			removed = append(removed, *held)
		}
		if models.CountActive(onGame)-freed >= locked.RefsNeeded {
			return apperr.Conflict("removing the conflicting assignments does not free a slot on the game", analysis)
		}

		for _, held := range removed {
			if _, err := tx.DeleteAssignment(ctx, held.ID); err != nil {
				return err
			}
		}

		recheck, err = conflicts.New(tx).Check(ctx, c)
		if err != nil {
			return err
		}
		if _, err := e.Blocking(recheck); err != nil {
			return err
		}
		if err := tx.InsertAssignment(ctx, a); err != nil {
			return err
		}

		synced := map[string]bool{c.GameID: true}
		if _, err := syncGameStatus(ctx, tx, c.GameID); err != nil {
			return err
		}
		for _, held := range removed {
			if synced[held.GameID] {
				continue
			}
			synced[held.GameID] = true
			if _, err := syncGameStatus(ctx, tx, held.GameID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		e.log.Debug().Err(err).
			Str("game_id", c.GameID).
			Str("user_id", c.RefereeID).
			Strs("displace", displace).
			Msg("replacement rejected")
		return nil, apperr.Wrap(err, "replace assignments")
	}

	for _, held := range removed {
		e.audit.Record(ctx, audit.Event{
			EventType: audit.AssignmentDeleted,
			EntityID:  held.ID,
			ActorID:   actor,
			Metadata: map[string]any{
				"game_id":     held.GameID,
				"user_id":     held.RefereeID,
				"status":      string(held.Status),
				"replaced_by": a.ID,
			},
		})
	}
	e.recordCreated(ctx, actor, a, breakdown)

	warnings, _ := e.Blocking(recheck)
	return &ReplaceResult{
		CreateResult: CreateResult{Assignment: a, WageBreakdown: breakdown, Warnings: warnings},
		Removed:      removed,
	}, nil
}
