// Package history records the outcome of each run to a SQL database and,
// optionally, to InfluxDB.
package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	"github.com/tcxtools/earlyturn/internal/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database types accepted by history.type.
const (
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
)

// ErrUnknownType is returned for an unsupported history.type.
var ErrUnknownType = errors.New("unknown history type")

// Recorder persists a finished run.
type Recorder interface {
	Record(ctx context.Context, run *Run) error
}

// Recorders fans a run out to every recorder.
type Recorders []Recorder

// Record calls every recorder concurrently and waits for all of them. One
// failing recorder does not cancel the others; failures are joined.
func (rs Recorders) Record(ctx context.Context, run *Run) error {
	p := pool.New().WithContext(ctx)
	for _, r := range rs {
		p.Go(func(ctx context.Context) error {
			return r.Record(ctx, run)
		})
	}
	return p.Wait()
}

// Manager stores runs through gorm.
type Manager struct {
	DB     *gorm.DB
	Logger zerolog.Logger

	// FellBack is set when postgres was requested but sqlite is in use.
	FellBack bool
}

// Open connects according to cfg. A postgres connection that cannot be
// established falls back to the sqlite path, as a local copy is better than
// losing the record.
func Open(cfg config.HistoryConfig, dbCfg config.DBConfig, log zerolog.Logger) (*Manager, error) {
	m := &Manager{Logger: log}

	switch cfg.Type {
	case TypeSQLite, "":
		db, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite history: %w", err)
		}
		m.DB = db
		m.Logger.Info().Str("path", cfg.SQLitePath).Msg("Using local SQLite history")
	case TypePostgres:
		db, err := OpenPostgres(dbCfg)
		if err == nil {
			err = ping(db)
		}
		if err != nil {
			m.Logger.Error().Err(err).Msg("Failed to connect to Postgres DB, trying SQLite")
			db, err = OpenSQLite(cfg.SQLitePath)
			if err != nil {
				return nil, fmt.Errorf("failed to get local SQLite DB: %w", err)
			}
			m.FellBack = true
		} else {
			m.Logger.Info().Str("host", dbCfg.Host).Msg("Connected to database")
		}
		m.DB = db
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, cfg.Type)
	}

	if err := m.Setup(); err != nil {
		return nil, err
	}
	return m, nil
}

// OpenPostgres opens a connection using the db.* settings.
func OpenPostgres(cfg config.DBConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=disable`,
		cfg.Host,
		cfg.Port,
		cfg.Username,
		cfg.Password,
		cfg.Database,
	)

	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
}

// OpenSQLite opens (creating if needed) the sqlite file at path.
func OpenSQLite(path string) (*gorm.DB, error) {
	if path == "" {
		return nil, errors.New("sqlite path not set")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	pragmas := []string{
		"PRAGMA user_version = 1;",
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA foreign_keys = ON;",
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("error setting PRAGMA: %w", err)
		}
	}

	return db, nil
}

func ping(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	return sqlDB.Ping()
}

// Setup migrates the history tables.
func (m *Manager) Setup() error {
	m.Logger.Debug().Str("dialect", m.DB.Dialector.Name()).Msg("Migrating schema")
	if err := m.DB.AutoMigrate(Models...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Record stores run and its early notices in one transaction.
func (m *Manager) Record(ctx context.Context, run *Run) error {
	err := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(run).Error
	})
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	m.Logger.Debug().
		Uint("id", run.ID).
		Str("input", run.InputPath).
		Int("inserted", run.Inserted).
		Msg("Run recorded")
	return nil
}

// Recent returns up to limit runs, newest first, with their early notices.
func (m *Manager) Recent(ctx context.Context, limit int) ([]Run, error) {
	var runs []Run
	err := m.DB.WithContext(ctx).
		Preload("EarlyNotices", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Order("started_at DESC, id DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load runs: %w", err)
	}
	return runs, nil
}

// Close releases the underlying connection pool.
func (m *Manager) Close() error {
	sqlDB, err := m.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
