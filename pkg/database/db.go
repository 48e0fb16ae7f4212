package database

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// activeSlotIndex keeps one non-declined assignment per (game, position).
// Both Postgres and SQLite support partial unique indexes.
const activeSlotIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_assignment_active_slot
	ON assignments (game_id, position_id) WHERE status <> 'declined'`

// Options selects and tunes the database connection.
type Options struct {
	// DatabaseURL selects Postgres when set.
	DatabaseURL string
	// DataPath is the SQLite file used when DatabaseURL is empty.
	DataPath string
	Logger   zerolog.Logger
	// LogQueries enables gorm's SQL trace at info level.
	LogQueries bool
}

// Open connects to the configured database and migrates the schema.
func Open(opts Options) (*gorm.DB, error) {
	cfg := &gorm.Config{
		TranslateError:                           true,
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   newGormLogger(opts.Logger, opts.LogQueries),
	}

	var (
		db  *gorm.DB
		err error
	)
	if opts.DatabaseURL != "" {
		db, err = gorm.Open(postgres.New(postgres.Config{
			DSN:                  opts.DatabaseURL,
			PreferSimpleProtocol: true,
		}), cfg)
	} else {
		path := opts.DataPath
		if path == "" {
			path = "referees.db"
		}
		db, err = gorm.Open(sqlite.Open(path), cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if db.Dialector.Name() == "sqlite" {
		// SQLite has no row locks; a single connection serialises writers.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access sqlite pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// OpenSQLite opens (and migrates) a SQLite database at path with quiet logging.
func OpenSQLite(path string) (*gorm.DB, error) {
	return Open(Options{DataPath: path, Logger: zerolog.Nop()})
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&LevelRow{},
		&RefereeRow{},
		&PositionRow{},
		&GameRow{},
		&AssignmentRow{},
		&PatternRow{},
		&AuditRow{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if err := db.Exec(activeSlotIndex).Error; err != nil {
		return fmt.Errorf("create active slot index: %w", err)
	}
	return nil
}

func newGormLogger(log zerolog.Logger, trace bool) gormlogger.Interface {
	level := gormlogger.Warn
	if trace {
		level = gormlogger.Info
	}
	return gormlogger.New(zerologWriter{log: log}, gormlogger.Config{
		SlowThreshold:             500 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
	})
}

// zerologWriter adapts zerolog to gorm's Printf-style logger.
type zerologWriter struct {
	log zerolog.Logger
}

func (w zerologWriter) Printf(format string, args ...interface{}) {
	w.log.Debug().Str("component", "gorm").Msgf(format, args...)
}
