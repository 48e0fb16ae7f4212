package database

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/arnavshah/referee-scheduler-api/pkg/apperr"
	"github.com/arnavshah/referee-scheduler-api/pkg/audit"
	"github.com/arnavshah/referee-scheduler-api/pkg/models"
	"github.com/arnavshah/referee-scheduler-api/pkg/store"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var _ audit.Sink = (*Repository)(nil)

func (r *Repository) FindHistory(ctx context.Context, since time.Time) ([]models.HistoricAssignment, error) {
	var rows []AssignmentRow
	err := r.db.WithContext(ctx).
		Joins("JOIN games ON games.id = assignments.game_id").
		Where("assignments.status IN ? AND games.game_date >= ?",
			[]string{string(models.StatusCompleted), string(models.StatusDeclined)},
			since.UTC().Format(models.DateLayout)).
		Preload("Game").
		Order("games.game_date, games.game_time, assignments.id").
		Find(&rows).Error
	if err != nil {
		return nil, apperr.Internal(err, "find assignment history")
	}

	out := make([]models.HistoricAssignment, 0, len(rows))
	for i := range rows {
		if rows[i].Game == nil {
			continue
		}
		g, err := gameFromRow(rows[i].Game)
		if err != nil {
			return nil, apperr.Internal(err, "decode game")
		}
		out = append(out, models.HistoricAssignment{
			RefereeID: rows[i].UserID,
			Status:    models.AssignmentStatus(rows[i].Status),
			Game:      *g,
		})
	}
	return out, nil
}

var patternKeyColumns = []clause.Column{
	{Name: "referee_id"},
	{Name: "day_of_week"},
	{Name: "location"},
	{Name: "time_slot"},
	{Name: "level"},
}

// UpsertPattern writes p keyed on its PatternKey. Usage counters of an
// existing row are left alone. p.ID is set to the stored row's id.
func (r *Repository) UpsertPattern(ctx context.Context, p *models.AssignmentPattern) error {
	row := patternRow(p)
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: patternKeyColumns,
		DoUpdates: clause.AssignmentColumns([]string{
			"frequency_count",
			"completed_assignments",
			"declined_assignments",
			"success_rate",
			"first_assigned",
			"last_assigned",
			"last_refreshed_at",
		}),
	}).Create(row).Error
	if err != nil {
		return apperr.Internal(err, "upsert pattern")
	}

	var stored PatternRow
	err = r.db.WithContext(ctx).
		Select("id").
		Where("referee_id = ? AND day_of_week = ? AND location = ? AND time_slot = ? AND level = ?",
			row.RefereeID, row.DayOfWeek, row.Location, row.TimeSlot, row.Level).
		First(&stored).Error
	if err != nil {
		return apperr.Internal(err, "reload pattern")
	}
	p.ID = stored.ID
	return nil
}

func (r *Repository) DeleteStalePatterns(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("last_refreshed_at < ?", cutoff.UTC()).Delete(&PatternRow{})
	if res.Error != nil {
		return 0, apperr.Internal(res.Error, "purge stale patterns")
	}
	return res.RowsAffected, nil
}

func (r *Repository) DeletePattern(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&PatternRow{})
	if res.Error != nil {
		return apperr.Internal(res.Error, "delete pattern")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("pattern", id)
	}
	return nil
}

func (r *Repository) FindPattern(ctx context.Context, id string) (*models.AssignmentPattern, error) {
	var row PatternRow
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "pattern", id, "find pattern")
	}
	return patternFromRow(&row), nil
}

func (r *Repository) ListPatterns(ctx context.Context, f store.PatternFilter) ([]models.AssignmentPattern, error) {
	q := r.db.WithContext(ctx).Model(&PatternRow{})
	if f.RefereeID != "" {
		q = q.Where("referee_id = ?", f.RefereeID)
	}
	if f.DayOfWeek != "" {
		q = q.Where("day_of_week = ?", f.DayOfWeek)
	}
	if f.Location != "" {
		q = q.Where("location = ?", f.Location)
	}
	if f.Level != "" {
		q = q.Where("level = ?", string(f.Level))
	}
	if f.TimeSlot != "" {
		q = q.Where("time_slot = ?", string(f.TimeSlot))
	}
	if f.MinFrequency > 0 {
		q = q.Where("frequency_count >= ?", f.MinFrequency)
	}
	if f.MinSuccessRate > 0 {
		q = q.Where("success_rate >= ?", f.MinSuccessRate)
	}
	if !f.StartDate.IsZero() {
		q = q.Where("last_assigned >= ?", f.StartDate.Format(models.DateLayout))
	}
	if !f.EndDate.IsZero() {
		q = q.Where("first_assigned <= ?", f.EndDate.Format(models.DateLayout))
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var rows []PatternRow
	if err := q.Order("frequency_count DESC, success_rate DESC, id").Find(&rows).Error; err != nil {
		return nil, apperr.Internal(err, "list patterns")
	}
	out := make([]models.AssignmentPattern, len(rows))
	for i := range rows {
		out[i] = *patternFromRow(&rows[i])
	}
	return out, nil
}

func (r *Repository) CountPatterns(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&PatternRow{}).Count(&n).Error; err != nil {
		return 0, apperr.Internal(err, "count patterns")
	}
	return n, nil
}

func (r *Repository) RecordPatternUsage(ctx context.Context, id string, n int, at time.Time) error {
	at = at.UTC()
	res := r.db.WithContext(ctx).
		Model(&PatternRow{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"times_applied":   gorm.Expr("times_applied + ?", n),
			"last_applied_at": at,
		})
	if res.Error != nil {
		return apperr.Internal(res.Error, "record pattern usage")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("pattern", id)
	}
	return nil
}

// Record stores an audit event. It outlives request cancellation and only
// logs failures.
func (r *Repository) Record(ctx context.Context, ev audit.Event) {
	var meta datatypes.JSON
	if len(ev.Metadata) > 0 {
		raw, err := json.Marshal(ev.Metadata)
		if err != nil {
			r.log.Warn().Err(err).Str("event_type", ev.EventType).Msg("audit metadata not encodable")
		} else {
			meta = datatypes.JSON(raw)
		}
	}
	row := &AuditRow{
		EventType: ev.EventType,
		EntityID:  ev.EntityID,
		ActorID:   ev.ActorID,
		Metadata:  meta,
	}
	if err := r.db.WithContext(context.WithoutCancel(ctx)).Create(row).Error; err != nil {
		r.log.Error().Err(err).
			Str("event_type", ev.EventType).
			Str("entity_id", ev.EntityID).
			Msg("failed to write audit event")
	}
}

// AuditEvents returns stored audit events for an entity, oldest first.
func (r *Repository) AuditEvents(ctx context.Context, entityID string) ([]audit.Event, error) {
	var rows []AuditRow
	if err := r.db.WithContext(ctx).Where("entity_id = ?", entityID).Order("id").Find(&rows).Error; err != nil {
		return nil, apperr.Internal(err, "list audit events")
	}
	out := make([]audit.Event, len(rows))
	for i, row := range rows {
		out[i] = audit.Event{EventType: row.EventType, EntityID: row.EntityID, ActorID: row.ActorID}
		if len(row.Metadata) > 0 {
			if err := json.Unmarshal(row.Metadata, &out[i].Metadata); err != nil {
				return nil, apperr.Internal(err, "decode audit metadata")
			}
		}
	}
	return out, nil
}

// Catalog writes. Games, referees, levels and positions are owned by the
// surrounding CRUD service; these exist for seeding and tests.

func (r *Repository) SaveLevel(ctx context.Context, l *models.Level) error {
	row, err := levelRow(l)
	if err != nil {
		return apperr.Internal(err, "encode level")
	}
	if err := r.db.WithContext(ctx).Save(row).Error; err != nil {
		return saveErr(err, "save level")
	}
	l.ID = row.ID
	return nil
}

func (r *Repository) SaveReferee(ctx context.Context, ref *models.Referee) error {
	row := &RefereeRow{
		ID:          ref.ID,
		Name:        ref.Name,
		Email:       ref.Email,
		IsAvailable: ref.Available,
	}
	if ref.Level != nil {
		if ref.Level.ID == "" {
			return apperr.Validation("referee %q: level must be saved first", ref.Name)
		}
		row.LevelID = &ref.Level.ID
	}
	if err := r.db.WithContext(ctx).Omit("Level").Save(row).Error; err != nil {
		return saveErr(err, "save referee")
	}
	ref.ID = row.ID
	return nil
}

func (r *Repository) SavePosition(ctx context.Context, p *models.Position) error {
	row := &PositionRow{ID: p.ID, Name: p.Name, Description: p.Description}
	if err := r.db.WithContext(ctx).Save(row).Error; err != nil {
		return saveErr(err, "save position")
	}
	p.ID = row.ID
	return nil
}

func (r *Repository) SaveGame(ctx context.Context, g *models.Game) error {
	if g.RefsNeeded < 0 {
		return apperr.Validation("refs_needed must not be negative")
	}
	row := gameRow(g)
	if err := r.db.WithContext(ctx).Save(row).Error; err != nil {
		return saveErr(err, "save game")
	}
	g.ID = row.ID
	g.Status = models.GameStatus(row.Status)
	if g.Duration <= 0 {
		g.Duration = models.DefaultGameDuration
	}
	return nil
}

func saveErr(err error, op string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Conflict(op+": duplicate record", nil)
	}
	return apperr.Internal(err, op)
}
