// Package database opens the SQL store behind the snapshot journal.
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database types accepted by Open.
const (
	TypePostgres = "postgres"
	TypeSQLite   = "sqlite"
)

const memoryDSN = "file::memory:?cache=shared"

// Settings selects the backend. SQLitePath empty means an in-memory
// database that is dumped to disk on shutdown.
type Settings struct {
	Type       string
	SQLitePath string

	Host     string
	Port     string
	Username string
	Password string
	Database string
}

func (s Settings) postgresDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		s.Host, s.Port, s.Username, s.Password, s.Database)
}

type Manager struct {
	DB *gorm.DB

	sqlDB    *sql.DB
	driver   string
	inMemory bool
	log      zerolog.Logger
}

// Open connects to Postgres when asked to and falls back to in-memory
// SQLite if that fails. Any other type opens SQLite directly.
func Open(s Settings, log zerolog.Logger) (*Manager, error) {
	m := &Manager{log: log}

	if s.Type == TypePostgres {
		err := m.openPostgres(s)
		if err == nil {
			log.Info().Str("host", s.Host).Str("database", s.Database).Msg("Connected to Postgres journal")
			return m, nil
		}
		log.Error().Err(err).Msg("Postgres unavailable, journaling to in-memory SQLite")
		s.SQLitePath = ""
	}

	if err := m.openSQLite(s.SQLitePath); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) openPostgres(s Settings) error {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  s.postgresDSN(),
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        5000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}
	if err := m.attach(db, TypePostgres); err != nil {
		return err
	}
	m.sqlDB.SetMaxOpenConns(10)
	m.sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	return nil
}

func (m *Manager) openSQLite(path string) error {
	dsn := path
	if path == "" {
		dsn = memoryDSN
		m.inMemory = true
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		CreateBatchSize:        2000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("open sqlite journal: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = MEMORY;",
		"PRAGMA synchronous = OFF;",
		"PRAGMA cache_size = -32000;",
		"PRAGMA temp_store = MEMORY;",
	} {
		if err := db.Exec(pragma).Error; err != nil {
			return fmt.Errorf("sqlite %q: %w", pragma, err)
		}
	}
	if err := m.attach(db, TypeSQLite); err != nil {
		return err
	}

	if m.inMemory {
		m.log.Info().Msg("Journaling to in-memory SQLite")
	} else {
		m.log.Info().Str("path", path).Msg("Journaling to SQLite file")
	}
	return nil
}

func (m *Manager) attach(db *gorm.DB, driver string) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("access sql handle: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("ping %s: %w", driver, err)
	}
	m.DB, m.sqlDB, m.driver = db, sqlDB, driver
	return nil
}

// Driver returns TypePostgres or TypeSQLite.
func (m *Manager) Driver() string { return m.driver }

// InMemory reports whether the journal lives only in memory.
func (m *Manager) InMemory() bool { return m.inMemory }

// DumpMemoryToDisk writes the SQLite database to path with VACUUM INTO,
// replacing any existing file.
func (m *Manager) DumpMemoryToDisk(path string) error {
	if path == "" {
		return errors.New("dump path not set")
	}
	if m.driver != TypeSQLite {
		return fmt.Errorf("cannot dump %s journal", m.driver)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove old dump: %w", err)
	}

	start := time.Now()
	if err := m.DB.Exec("VACUUM INTO ?", "file:"+path).Error; err != nil {
		return fmt.Errorf("dump journal: %w", err)
	}
	m.log.Debug().Str("path", path).Dur("duration", time.Since(start)).Msg("Dumped journal to disk")
	return nil
}

func (m *Manager) Close() error {
	if m.sqlDB == nil {
		return nil
	}
	err := m.sqlDB.Close()
	m.sqlDB = nil
	return err
}
