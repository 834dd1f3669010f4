// Package store persists analysis runs in DuckDB or SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "modernc.org/sqlite"

	"github.com/tinytelemetry/logstat/internal/store/migrate"
)

// Supported database drivers.
const (
	DriverDuckDB = "duckdb"
	DriverSQLite = "sqlite"
)

const defaultQueryTimeout = 30 * time.Second

// Config selects the database backing a Store.
type Config struct {
	Driver       string // DriverDuckDB or DriverSQLite, default DriverSQLite
	Path         string // empty means in-memory
	QueryTimeout time.Duration
}

// Store manages the database connection and provides query methods.
type Store struct {
	db           *sql.DB
	mu           sync.RWMutex
	driver       string
	dbPath       string
	QueryTimeout time.Duration
}

// NewStore opens or creates the database and applies pending migrations.
func NewStore(conf Config) (*Store, error) {
	driver := conf.Driver
	if driver == "" {
		driver = DriverSQLite
	}

	if conf.Path != "" {
		if err := os.MkdirAll(filepath.Dir(conf.Path), 0755); err != nil {
			return nil, err
		}
	}

	var dsn string
	switch driver {
	case DriverDuckDB:
		dsn = conf.Path
	case DriverSQLite:
		dsn = ":memory:"
		if conf.Path != "" {
			dsn = conf.Path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		}
	default:
		return nil, fmt.Errorf("store: unknown driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// Every new connection to ":memory:" is a fresh database.
		db.SetMaxOpenConns(1)
	}

	if err := migrateSchema(db, driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	qt := defaultQueryTimeout
	if conf.QueryTimeout > 0 {
		qt = conf.QueryTimeout
	}

	return &Store{
		db:           db,
		driver:       driver,
		dbPath:       conf.Path,
		QueryTimeout: qt,
	}, nil
}

func migrateSchema(db *sql.DB, driver string) error {
	runner, err := migrate.NewRunner(db, driver)
	if err != nil {
		return err
	}
	ran, err := runner.Run()
	if err != nil {
		return err
	}
	version, _, err := runner.Status()
	if err != nil {
		return err
	}
	applied, err := runner.Applied()
	if err != nil {
		return err
	}
	log.Printf("store: %s schema at version %d (%d migrations, %d new)", driver, version, len(applied), len(ran))
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Driver returns the database driver name.
func (s *Store) Driver() string {
	return s.driver
}

// queryCtx returns a context with the store's configured query timeout.
func (s *Store) queryCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.QueryTimeout)
}
