package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	busyTimeoutMS          = 5000
	defaultMaxOpenConns    = 1
	defaultMaxIdleConns    = 1
	defaultConnMaxLifetime = 5 * time.Minute

	maxOpenConnsEnvKey    = "CREDVAULT_DB_MAX_OPEN_CONNS"
	connMaxLifetimeEnvKey = "CREDVAULT_DB_CONN_MAX_LIFETIME"
)

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens the SQLite database and applies pending migrations.
func Open(path string) (*Store, error) {
	dsn, err := sqliteDSN(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := configureDB(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Driver names the storage engine.
func (s *Store) Driver() string {
	return "sqlite"
}

// StoreInfo returns schema version and row counts.
func (s *Store) StoreInfo(ctx context.Context) (*StoreInfo, error) {
	info := &StoreInfo{Driver: s.Driver()}
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&info.SchemaVersion); err != nil {
		return nil, err
	}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM blobs),
			(SELECT COUNT(*) FROM documents),
			(SELECT COUNT(*) FROM titles),
			(SELECT COUNT(*) FROM contracts)
	`).Scan(&info.Blobs, &info.Documents, &info.Titles, &info.Contracts)
	if err != nil {
		return nil, err
	}
	return info, nil
}

// poolSettings is the database/sql pool shape for the SQLite handle.
type poolSettings struct {
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

// poolSettingsFromEnv reads CREDVAULT_DB_MAX_OPEN_CONNS and
// CREDVAULT_DB_CONN_MAX_LIFETIME. Invalid or non-positive values fall back to
// the defaults; idle connections never exceed open ones.
func poolSettingsFromEnv() poolSettings {
	settings := poolSettings{
		MaxOpen:         intFromEnv(maxOpenConnsEnvKey, defaultMaxOpenConns),
		MaxIdle:         defaultMaxIdleConns,
		ConnMaxLifetime: durationFromEnv(connMaxLifetimeEnvKey, defaultConnMaxLifetime),
	}
	if settings.MaxIdle > settings.MaxOpen {
		settings.MaxIdle = settings.MaxOpen
	}
	return settings
}

func (p poolSettings) apply(db *sql.DB) {
	db.SetMaxOpenConns(p.MaxOpen)
	db.SetMaxIdleConns(p.MaxIdle)
	db.SetConnMaxLifetime(p.ConnMaxLifetime)
}

func configureDB(db *sql.DB) error {
	// WAL is a database-level setting; the per-connection pragmas live in the DSN.
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		return err
	}
	poolSettingsFromEnv().apply(db)
	return nil
}

// sqliteDSN builds a modernc DSN. Write transactions start with BEGIN IMMEDIATE so
// check-then-insert sequences serialize across connections and processes.
func sqliteDSN(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("db path is required")
	}
	query := url.Values{}
	query.Add("_pragma", "foreign_keys(1)")
	query.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeoutMS))
	query.Add("_pragma", "synchronous(NORMAL)")
	query.Set("_txlock", "immediate")
	u := url.URL{Scheme: "file", Path: path, RawQuery: query.Encode()}
	return u.String(), nil
}

func intFromEnv(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return def
	}
	return value
}

func durationFromEnv(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return def
}
