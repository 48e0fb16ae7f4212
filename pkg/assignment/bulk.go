package assignment

import (
	"context"
	"errors"
	"strings"

	"github.com/arnavshah/referee-scheduler-api/pkg/apperr"
	"github.com/arnavshah/referee-scheduler-api/pkg/audit"
	"github.com/arnavshah/referee-scheduler-api/pkg/conflicts"
	"github.com/arnavshah/referee-scheduler-api/pkg/models"
	"github.com/arnavshah/referee-scheduler-api/pkg/store"
	"github.com/arnavshah/referee-scheduler-api/pkg/wage"
	"github.com/shopspring/decimal"
)

// ItemError reports the failure of one item in a bulk call.
type ItemError struct {
	Index int         `json:"index"`
	Input any         `json:"input"`
	Error string      `json:"error"`
	Code  apperr.Kind `json:"code"`
}

func itemError(i int, input any, err error) ItemError {
	return ItemError{Index: i, Input: input, Error: apperr.MessageOf(err), Code: apperr.KindOf(err)}
}

// BulkItem is one referee/position pair for a bulk create on a game.
type BulkItem struct {
	RefereeID  string `json:"user_id"`
	PositionID string `json:"position_id"`
}

// Summary counts the outcome of a bulk create.
type Summary struct {
	Total          int  `json:"total"`
	Successful     int  `json:"successful"`
	Failed         int  `json:"failed"`
	PartialSuccess bool `json:"partialSuccess"`
}

type BulkCreateResult struct {
	Created []CreateResult `json:"created"`
	Errors  []ItemError    `json:"errors"`
	Summary Summary        `json:"summary"`
}

func (e *Engine) checkBatch(n int) error {
	if n == 0 {
		return apperr.Validation("batch must contain at least one item")
	}
	if n > e.maxBatchSize {
		return apperr.Validation("batch of %d items exceeds the limit of %d", n, e.maxBatchSize)
	}
	return nil
}

// BulkCreate runs Create for every item on gameID. Items are independent:
// a failed item is reported and the rest still run.
func (e *Engine) BulkCreate(ctx context.Context, actor, gameID string, items []BulkItem) (*BulkCreateResult, error) {
	if strings.TrimSpace(gameID) == "" {
		return nil, apperr.Validation("game_id is required")
	}
	if err := e.checkBatch(len(items)); err != nil {
		return nil, err
	}

	res := &BulkCreateResult{Created: []CreateResult{}, Errors: []ItemError{}}
	for i, item := range items {
		created, err := e.Create(ctx, actor, conflicts.Candidate{
			GameID:     gameID,
			RefereeID:  item.RefereeID,
			PositionID: item.PositionID,
		})
		if err != nil {
			res.Errors = append(res.Errors, itemError(i, item, err))
			continue
		}
		res.Created = append(res.Created, *created)
	}

	res.Summary = Summary{
		Total:      len(items),
		Successful: len(res.Created),
		Failed:     len(res.Errors),
	}
	res.Summary.PartialSuccess = res.Summary.Successful > 0 && res.Summary.Failed > 0
	e.metrics.BulkItems("create", res.Summary.Successful, res.Summary.Failed)
	return res, nil
}

// StatusUpdate changes the status, and optionally the frozen wage, of one
// assignment.
type StatusUpdate struct {
	AssignmentID   string           `json:"assignment_id"`
	Status         string           `json:"status"`
	CalculatedWage *decimal.Decimal `json:"calculated_wage,omitempty"`
}

type UpdateSummary struct {
	TotalUpdates      int  `json:"totalUpdates"`
	SuccessfulUpdates int  `json:"successfulUpdates"`
	FailedUpdates     int  `json:"failedUpdates"`
	PartialSuccess    bool `json:"partialSuccess"`
}

type BulkUpdateResult struct {
	Updated []models.Assignment `json:"updated"`
	Errors  []ItemError         `json:"errors"`
	Summary UpdateSummary       `json:"summary"`
}

// BulkUpdateStatus applies each update in its own transaction.
func (e *Engine) BulkUpdateStatus(ctx context.Context, actor string, updates []StatusUpdate) (*BulkUpdateResult, error) {
	if err := e.checkBatch(len(updates)); err != nil {
		return nil, err
	}

	res := &BulkUpdateResult{Updated: []models.Assignment{}, Errors: []ItemError{}}
	for i, u := range updates {
		updated, from, err := e.updateStatus(ctx, u)
		if err != nil {
			res.Errors = append(res.Errors, itemError(i, u, err))
			continue
		}
		res.Updated = append(res.Updated, *updated)
		e.audit.Record(ctx, audit.Event{
			EventType: audit.AssignmentStatusChanged,
			EntityID:  updated.ID,
			ActorID:   actor,
			Metadata: map[string]any{
				"game_id": updated.GameID,
				"from":    string(from),
				"to":      string(updated.Status),
				"wage":    updated.CalculatedWage.StringFixed(wage.Places),
			},
		})
	}

	res.Summary = UpdateSummary{
		TotalUpdates:      len(updates),
		SuccessfulUpdates: len(res.Updated),
		FailedUpdates:     len(res.Errors),
	}
	res.Summary.PartialSuccess = res.Summary.SuccessfulUpdates > 0 && res.Summary.FailedUpdates > 0
	e.metrics.BulkItems("update_status", res.Summary.SuccessfulUpdates, res.Summary.FailedUpdates)
	return res, nil
}

func (e *Engine) updateStatus(ctx context.Context, u StatusUpdate) (*models.Assignment, models.AssignmentStatus, error) {
	if strings.TrimSpace(u.AssignmentID) == "" {
		return nil, "", apperr.Validation("assignment_id is required")
	}
	status, ok := models.ParseAssignmentStatus(u.Status)
	if !ok {
		return nil, "", apperr.Validation("invalid status %q: must be one of pending, accepted, declined, completed", u.Status)
	}
	if u.CalculatedWage != nil && u.CalculatedWage.IsNegative() {
		return nil, "", apperr.Validation("calculated_wage must not be negative, got %s", u.CalculatedWage)
	}

	var (
		updated *models.Assignment
		from    models.AssignmentStatus
	)
	err := e.store.Transaction(ctx, func(tx store.Store) error {
		a, err := tx.FindAssignment(ctx, u.AssignmentID)
		if err != nil {
			return err
		}
		from = a.Status

		// A declined assignment no longer holds its slot; taking it back
		// goes through the same checks as a new assignment.
		if !from.Active() && status.Active() {
			err := e.lockAndRecheck(ctx, tx, conflicts.Candidate{
				GameID:     a.GameID,
				RefereeID:  a.RefereeID,
				PositionID: a.PositionID,
			})
			if err != nil {
				return err
			}
		}

		a.Status = status
		if u.CalculatedWage != nil {
			a.CalculatedWage = u.CalculatedWage.Round(wage.Places)
		}
		a.UpdatedAt = e.now().UTC()
		if err := tx.UpdateAssignment(ctx, a); err != nil {
			return err
		}
		if from.Active() != status.Active() {
			if _, err := syncGameStatus(ctx, tx, a.GameID); err != nil {
				return err
			}
		}
		updated = a
		return nil
	})
	if err != nil {
		return nil, "", apperr.Wrap(err, "update assignment status")
	}
	return updated, from, nil
}

type RemoveSummary struct {
	Requested int `json:"requested"`
	Deleted   int `json:"deleted"`
	NotFound  int `json:"notFound"`
	Failed    int `json:"failed"`
}

type BulkRemoveResult struct {
	DeletedCount  int           `json:"deletedCount"`
	DeletedIDs    []string      `json:"deletedIds"`
	AffectedGames []string      `json:"affectedGames"`
	Errors        []ItemError   `json:"errors"`
	Summary       RemoveSummary `json:"summary"`
}

// BulkRemove hard-deletes assignments. Ids that do not exist are counted
// but are not errors. Each touched game is recomputed and listed once in
// AffectedGames, in first-seen order.
func (e *Engine) BulkRemove(ctx context.Context, actor string, ids []string) (*BulkRemoveResult, error) {
	if err := e.checkBatch(len(ids)); err != nil {
		return nil, err
	}

	res := &BulkRemoveResult{DeletedIDs: []string{}, AffectedGames: []string{}, Errors: []ItemError{}}
	seen := make(map[string]bool)
	for i, id := range ids {
		if strings.TrimSpace(id) == "" {
			res.Errors = append(res.Errors, itemError(i, id, apperr.Validation("assignment id is required")))
			continue
		}

		var removed *models.Assignment
		err := e.store.Transaction(ctx, func(tx store.Store) error {
			a, err := tx.FindAssignment(ctx, id)
			if err != nil {
				return err
			}
			ok, err := tx.DeleteAssignment(ctx, id)
			if err != nil || !ok {
				return err
			}
			if _, err := syncGameStatus(ctx, tx, a.GameID); err != nil {
				return err
			}
			removed = a
			return nil
		})
		switch {
		case err != nil && errors.Is(err, apperr.ErrNotFound):
			res.Summary.NotFound++
			continue
		case err != nil:
			res.Errors = append(res.Errors, itemError(i, id, apperr.Wrap(err, "remove assignment")))
			continue
		case removed == nil:
			res.Summary.NotFound++
			continue
		}

		res.DeletedIDs = append(res.DeletedIDs, removed.ID)
		if !seen[removed.GameID] {
			seen[removed.GameID] = true
			res.AffectedGames = append(res.AffectedGames, removed.GameID)
		}
		e.audit.Record(ctx, audit.Event{
			EventType: audit.AssignmentDeleted,
			EntityID:  removed.ID,
			ActorID:   actor,
			Metadata: map[string]any{
				"game_id": removed.GameID,
				"user_id": removed.RefereeID,
				"status":  string(removed.Status),
			},
		})
	}

	res.DeletedCount = len(res.DeletedIDs)
	res.Summary.Requested = len(ids)
	res.Summary.Deleted = res.DeletedCount
	res.Summary.Failed = len(res.Errors)
	e.metrics.BulkItems("remove", res.DeletedCount, res.Summary.Failed)
	return res, nil
}
