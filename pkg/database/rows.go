package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// LevelRow represents the referee_levels table
type LevelRow struct {
	ID               string          `gorm:"primaryKey;size:36"`
	Name             string          `gorm:"unique;not null"`
	WagePerGame      decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	AllowedDivisions datatypes.JSON  `gorm:"not null"`
	CreatedAt        time.Time
}

func (LevelRow) TableName() string { return "referee_levels" }

// RefereeRow represents the referees table
type RefereeRow struct {
	ID          string    `gorm:"primaryKey;size:36"`
	Name        string    `gorm:"not null"`
	Email       string    `gorm:"index"`
	LevelID     *string   `gorm:"size:36;index"`
	Level       *LevelRow `gorm:"foreignKey:LevelID"`
	IsAvailable bool      `gorm:"not null"`
	CreatedAt   time.Time
}

func (RefereeRow) TableName() string { return "referees" }

// PositionRow represents the positions table
type PositionRow struct {
	ID          string `gorm:"primaryKey;size:36"`
	Name        string `gorm:"unique;not null"`
	Description string
	CreatedAt   time.Time
}

func (PositionRow) TableName() string { return "positions" }

// GameRow represents the games table. Date and time are stored as text so
// date equality is portable between Postgres and SQLite.
type GameRow struct {
	ID               string              `gorm:"primaryKey;size:36"`
	GameDate         string              `gorm:"size:10;not null;index"`
	GameTime         string              `gorm:"size:5;not null"`
	DurationMinutes  int                 `gorm:"not null"`
	Location         string              `gorm:"not null"`
	Level            string              `gorm:"not null;index"`
	PayRate          decimal.Decimal     `gorm:"type:decimal(10,2);not null"`
	WageMultiplier   decimal.NullDecimal `gorm:"type:decimal(5,2)"`
	MultiplierReason string
	RefsNeeded       int    `gorm:"not null"`
	Status           string `gorm:"size:16;not null"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (GameRow) TableName() string { return "games" }

// AssignmentRow represents the assignments table
type AssignmentRow struct {
	ID             string          `gorm:"primaryKey;size:36"`
	GameID         string          `gorm:"size:36;not null;index"`
	Game           *GameRow        `gorm:"foreignKey:GameID"`
	UserID         string          `gorm:"size:36;not null;index"`
	PositionID     string          `gorm:"size:36;not null"`
	Status         string          `gorm:"size:16;not null;index"`
	CalculatedWage decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	AssignedBy     string          `gorm:"size:64"`
	AssignedAt     time.Time       `gorm:"not null"`
	UpdatedAt      time.Time
}

func (AssignmentRow) TableName() string { return "assignments" }

// PatternRow represents the assignment_patterns table
type PatternRow struct {
	ID                   string          `gorm:"primaryKey;size:36"`
	RefereeID            string          `gorm:"size:36;not null;uniqueIndex:idx_pattern_key"`
	DayOfWeek            string          `gorm:"size:9;not null;uniqueIndex:idx_pattern_key"`
	Location             string          `gorm:"not null;uniqueIndex:idx_pattern_key"`
	TimeSlot             string          `gorm:"size:9;not null;uniqueIndex:idx_pattern_key"`
	Level                string          `gorm:"not null;uniqueIndex:idx_pattern_key"`
	FrequencyCount       int             `gorm:"not null"`
	CompletedAssignments int             `gorm:"not null"`
	DeclinedAssignments  int             `gorm:"not null"`
	SuccessRate          decimal.Decimal `gorm:"type:decimal(5,2);not null"`
	FirstAssigned        string          `gorm:"size:10"`
	LastAssigned         string          `gorm:"size:10"`
	TimesApplied         int             `gorm:"not null"`
	LastAppliedAt        *time.Time
	LastRefreshedAt      time.Time `gorm:"not null;index"`
}

func (PatternRow) TableName() string { return "assignment_patterns" }

// AuditRow represents the audit_events table
type AuditRow struct {
	ID        uint           `gorm:"primaryKey"`
	EventType string         `gorm:"size:64;not null;index"`
	EntityID  string         `gorm:"size:36;not null;index"`
	ActorID   string         `gorm:"size:64"`
	Metadata  datatypes.JSON `json:"metadata"`
	CreatedAt time.Time
}

func (AuditRow) TableName() string { return "audit_events" }

func newID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

func (r *LevelRow) BeforeCreate(*gorm.DB) error      { newID(&r.ID); return nil }
func (r *RefereeRow) BeforeCreate(*gorm.DB) error    { newID(&r.ID); return nil }
func (r *PositionRow) BeforeCreate(*gorm.DB) error   { newID(&r.ID); return nil }
func (r *GameRow) BeforeCreate(*gorm.DB) error       { newID(&r.ID); return nil }
func (r *AssignmentRow) BeforeCreate(*gorm.DB) error { newID(&r.ID); return nil }
func (r *PatternRow) BeforeCreate(*gorm.DB) error    { newID(&r.ID); return nil }
