// Package database implements the persistence contracts on top of gorm.
package database

import (
	"context"
	"errors"
	"time"

	"github.com/arnavshah/referee-scheduler-api/pkg/apperr"
	"github.com/arnavshah/referee-scheduler-api/pkg/models"
	"github.com/arnavshah/referee-scheduler-api/pkg/store"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository implements store.Store and store.PatternStore.
type Repository struct {
	db  *gorm.DB
	log zerolog.Logger
}

var (
	_ store.Store        = (*Repository)(nil)
	_ store.PatternStore = (*Repository)(nil)
)

// Option configures a Repository.
type Option func(*Repository)

// WithLogger sets the logger used for audit write failures.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Repository) { r.log = l }
}

// NewRepository wraps db.
func NewRepository(db *gorm.DB, opts ...Option) *Repository {
	r := &Repository{db: db, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DB exposes the underlying handle, for wiring and tests.
func (r *Repository) DB() *gorm.DB { return r.db }

func notFoundOr(err error, entity, id, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(entity, id)
	}
	return apperr.Internal(err, op)
}

func (r *Repository) FindGame(ctx context.Context, id string) (*models.Game, error) {
	var row GameRow
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "game", id, "find game")
	}
	g, err := gameFromRow(&row)
	if err != nil {
		return nil, apperr.Internal(err, "decode game")
	}
	return g, nil
}

func (r *Repository) FindReferee(ctx context.Context, id string) (*models.Referee, error) {
	var row RefereeRow
	if err := r.db.WithContext(ctx).Preload("Level").First(&row, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "referee", id, "find referee")
	}
	ref, err := refereeFromRow(&row)
	if err != nil {
		return nil, apperr.Internal(err, "decode referee")
	}
	return ref, nil
}

func (r *Repository) FindPosition(ctx context.Context, id string) (*models.Position, error) {
	var row PositionRow
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "position", id, "find position")
	}
	return &models.Position{ID: row.ID, Name: row.Name, Description: row.Description}, nil
}

func (r *Repository) FindAssignment(ctx context.Context, id string) (*models.Assignment, error) {
	var row AssignmentRow
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "assignment", id, "find assignment")
	}
	a, err := assignmentFromRow(&row)
	if err != nil {
		return nil, apperr.Internal(err, "decode assignment")
	}
	return a, nil
}

func (r *Repository) FindAssignmentsByGame(ctx context.Context, gameID string) ([]models.Assignment, error) {
	var rows []AssignmentRow
	err := r.db.WithContext(ctx).
		Where("game_id = ?", gameID).
		Order("assigned_at, id").
		Find(&rows).Error
	if err != nil {
		return nil, apperr.Internal(err, "find assignments by game")
	}
	out, err := assignmentsFromRows(rows)
	if err != nil {
		return nil, apperr.Internal(err, "decode assignments")
	}
	return out, nil
}

func (r *Repository) FindAssignmentsByRefereeAndDate(ctx context.Context, refereeID string, date time.Time) ([]models.Assignment, error) {
	var rows []AssignmentRow
	err := r.db.WithContext(ctx).
		Joins("JOIN games ON games.id = assignments.game_id").
		Where("assignments.user_id = ? AND games.game_date = ?", refereeID, date.UTC().Format(models.DateLayout)).
		Preload("Game").
		Order("games.game_time, assignments.id").
		Find(&rows).Error
	if err != nil {
		return nil, apperr.Internal(err, "find assignments by referee and date")
	}
	out, err := assignmentsFromRows(rows)
	if err != nil {
		return nil, apperr.Internal(err, "decode assignments")
	}
	return out, nil
}

func (r *Repository) ListReferees(ctx context.Context) ([]models.Referee, error) {
	var rows []RefereeRow
	if err := r.db.WithContext(ctx).Preload("Level").Order("name, id").Find(&rows).Error; err != nil {
		return nil, apperr.Internal(err, "list referees")
	}
	out := make([]models.Referee, 0, len(rows))
	for i := range rows {
		ref, err := refereeFromRow(&rows[i])
		if err != nil {
			return nil, apperr.Internal(err, "decode referee")
		}
		out = append(out, *ref)
	}
	return out, nil
}

func (r *Repository) ListPositions(ctx context.Context) ([]models.Position, error) {
	var rows []PositionRow
	if err := r.db.WithContext(ctx).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, apperr.Internal(err, "list positions")
	}
	out := make([]models.Position, len(rows))
	for i, row := range rows {
		out[i] = models.Position{ID: row.ID, Name: row.Name, Description: row.Description}
	}
	return out, nil
}

// LockGame selects the game row FOR UPDATE. The sqlite dialect drops the
// locking clause; there the single pooled connection does the serialising.
func (r *Repository) LockGame(ctx context.Context, id string) (*models.Game, error) {
	var row GameRow
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&row, "id = ?", id).Error
	if err != nil {
		return nil, notFoundOr(err, "game", id, "lock game")
	}
	g, err := gameFromRow(&row)
	if err != nil {
		return nil, apperr.Internal(err, "decode game")
	}
	return g, nil
}

func (r *Repository) LockReferee(ctx context.Context, id string) (*models.Referee, error) {
	var row RefereeRow
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&row, "id = ?", id).Error
	if err != nil {
		return nil, notFoundOr(err, "referee", id, "lock referee")
	}
	return r.FindReferee(ctx, id)
}

func (r *Repository) InsertAssignment(ctx context.Context, a *models.Assignment) error {
	row := assignmentRow(a)
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperr.Conflict("position is already assigned for this game", map[string]string{
				"game_id":     a.GameID,
				"position_id": a.PositionID,
			})
		}
		return apperr.Internal(err, "insert assignment")
	}
	a.ID = row.ID
	return nil
}

func (r *Repository) UpdateAssignment(ctx context.Context, a *models.Assignment) error {
	res := r.db.WithContext(ctx).
		Model(&AssignmentRow{}).
		Where("id = ?", a.ID).
		Updates(map[string]any{
			"status":          string(a.Status),
			"calculated_wage": a.CalculatedWage,
			"updated_at":      a.UpdatedAt,
		})
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return apperr.Conflict("position is already assigned for this game", map[string]string{
				"game_id":     a.GameID,
				"position_id": a.PositionID,
			})
		}
		return apperr.Internal(res.Error, "update assignment")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("assignment", a.ID)
	}
	return nil
}

func (r *Repository) DeleteAssignment(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&AssignmentRow{})
	if res.Error != nil {
		return false, apperr.Internal(res.Error, "delete assignment")
	}
	return res.RowsAffected > 0, nil
}

func (r *Repository) UpdateGameStatus(ctx context.Context, gameID string, status models.GameStatus) error {
	res := r.db.WithContext(ctx).
		Model(&GameRow{}).
		Where("id = ?", gameID).
		Update("status", string(status))
	if res.Error != nil {
		return apperr.Internal(res.Error, "update game status")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("game", gameID)
	}
	return nil
}

func (r *Repository) Transaction(ctx context.Context, fn func(tx store.Store) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx, log: r.log})
	})
}
