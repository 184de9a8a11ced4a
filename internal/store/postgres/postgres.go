// Package postgres implements the credvault repository on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"credvault/internal/store"
)

// DBTX is satisfied by both the pool and a transaction.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// Store is a PostgreSQL-backed store.Repository.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Repository = (*Store)(nil)

// Open connects to dsn, verifies connectivity and applies pending migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := runMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Driver names the storage engine.
func (s *Store) Driver() string {
	return "postgres"
}

// StoreInfo returns schema version and row counts.
func (s *Store) StoreInfo(ctx context.Context) (*store.StoreInfo, error) {
	info := &store.StoreInfo{Driver: s.Driver()}
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COALESCE(MAX(version), 0) FROM schema_migrations),
			(SELECT COUNT(*) FROM blobs),
			(SELECT COUNT(*) FROM documents),
			(SELECT COUNT(*) FROM titles),
			(SELECT COUNT(*) FROM contracts)
	`).Scan(&info.SchemaVersion, &info.Blobs, &info.Documents, &info.Titles, &info.Contracts)
	if err != nil {
		return nil, err
	}
	return info, nil
}

// inTx runs fn inside a transaction with the given options, committing on success.
func (s *Store) inTx(ctx context.Context, opts pgx.TxOptions, fn func(pgx.Tx) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func pgErrorCode(err error) (string, string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	return "", ""
}

const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeExclusionViolation   = "23P01"
	codeSerializationFailure = "40001"
)

func isUniqueViolation(err error, constraint string) bool {
	code, name := pgErrorCode(err)
	return code == codeUniqueViolation && (constraint == "" || name == constraint)
}

// IsForeignKeyViolation reports whether err is a PostgreSQL foreign key failure.
func IsForeignKeyViolation(err error) bool {
	code, _ := pgErrorCode(err)
	return code == codeForeignKeyViolation
}
