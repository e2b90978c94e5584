package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"linear_reminder_bot/internal/domain/tracking"

	_ "github.com/lib/pq" // PostgreSQL driver
	_ "modernc.org/sqlite"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 5 * time.Minute
	defaultConnMaxIdleTime = 1 * time.Minute

	sqliteBusyTimeout = 5 * time.Second
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Open returns a connection pool for the configured driver and pings it.
func Open(driver, dataSourceName string) (*sql.DB, error) {
	switch driver {
	case "postgres":
		return NewPostgresConnection(dataSourceName)
	case "sqlite":
		return NewSQLiteConnection(dataSourceName)
	default:
		return nil, fmt.Errorf("unknown database driver: %s", driver)
	}
}

// NewPostgresConnection creates and returns a new PostgreSQL database connection.
// It also pings the database to ensure connectivity.
func NewPostgresConnection(dataSourceName string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// NewSQLiteConnection opens an embedded database file. A single connection
// serializes writers, which is what gives the conditional writes their atomicity.
func NewSQLiteConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Basic pragmas.
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", sqliteBusyTimeout.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	return db, nil
}

// Migrate applies the embedded schema for driver. Statements are idempotent.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	schema, err := migrationsFS.ReadFile("migrations/" + driver + ".sql")
	if err != nil {
		return fmt.Errorf("no migration for driver %s: %w", driver, err)
	}
	if _, err := db.ExecContext(ctx, string(schema)); err != nil {
		return fmt.Errorf("failed to run migration: %w", err)
	}
	return nil
}

// NewTimingRepository picks the repository implementation matching driver.
func NewTimingRepository(db *sql.DB, driver string) (tracking.Repository, error) {
	switch driver {
	case "postgres":
		return NewPostgresTimingRepository(db), nil
	case "sqlite":
		return NewSQLiteTimingRepository(db), nil
	default:
		return nil, fmt.Errorf("unknown database driver: %s", driver)
	}
}
