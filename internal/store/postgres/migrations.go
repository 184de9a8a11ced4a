package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// migrationLockKey serializes concurrent migrators through an advisory lock.
const migrationLockKey = 7420

type migration struct {
	version     int
	description string
	sql         string
}

var migrations = []migration{
	{
		version:     1,
		description: "reference catalog",
		sql: `
CREATE TABLE IF NOT EXISTS persons (
  id TEXT PRIMARY KEY,
  full_name TEXT NOT NULL,
  national_id TEXT,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS instructors (
  id TEXT PRIMARY KEY,
  person_id TEXT NOT NULL UNIQUE REFERENCES persons(id) ON DELETE RESTRICT,
  registered_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS subjects (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS periods (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS credential_types (
  id TEXT PRIMARY KEY,
  kind TEXT NOT NULL CHECK (kind IN ('document', 'title')),
  name TEXT NOT NULL
);
`,
	},
	{
		version:     2,
		description: "content-addressed blobs",
		sql: `
CREATE TABLE IF NOT EXISTS blobs (
  id TEXT PRIMARY KEY,
  sha256 TEXT NOT NULL,
  size_bytes BIGINT NOT NULL CHECK (size_bytes >= 0),
  media_type TEXT NOT NULL,
  filename TEXT,
  storage_backend TEXT NOT NULL,
  blob_key TEXT NOT NULL,
  uploaded_by TEXT,
  created_at TIMESTAMPTZ NOT NULL,
  CONSTRAINT blobs_sha256_key UNIQUE (sha256),
  CONSTRAINT blobs_blob_key_key UNIQUE (blob_key)
);
CREATE INDEX IF NOT EXISTS idx_blobs_created_at ON blobs(created_at);
`,
	},
	{
		version:     3,
		description: "documents and titles",
		sql: `
CREATE TABLE IF NOT EXISTS documents (
  id TEXT PRIMARY KEY,
  person_id TEXT NOT NULL REFERENCES persons(id) ON DELETE RESTRICT,
  type_id TEXT NOT NULL REFERENCES credential_types(id) ON DELETE RESTRICT,
  description TEXT,
  blob_id TEXT REFERENCES blobs(id) ON DELETE RESTRICT,
  state TEXT NOT NULL CHECK (state IN ('pending', 'approved', 'rejected', 'observed')),
  justification TEXT,
  decided_by TEXT,
  decided_at TIMESTAMPTZ,
  is_current BOOLEAN NOT NULL DEFAULT TRUE,
  submitted_by TEXT,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS titles (
  id TEXT PRIMARY KEY,
  person_id TEXT NOT NULL REFERENCES persons(id) ON DELETE RESTRICT,
  type_id TEXT NOT NULL REFERENCES credential_types(id) ON DELETE RESTRICT,
  description TEXT,
  blob_id TEXT REFERENCES blobs(id) ON DELETE RESTRICT,
  state TEXT NOT NULL CHECK (state IN ('pending', 'approved', 'rejected', 'observed')),
  justification TEXT,
  decided_by TEXT,
  decided_at TIMESTAMPTZ,
  submitted_by TEXT,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_blob_id ON documents(blob_id);
CREATE INDEX IF NOT EXISTS idx_documents_person_type ON documents(person_id, type_id);
CREATE INDEX IF NOT EXISTS idx_titles_blob_id ON titles(blob_id);
CREATE INDEX IF NOT EXISTS idx_titles_person_id ON titles(person_id);
`,
	},
	{
		version:     4,
		description: "instructor contracts with exclusion constraint",
		sql: `
CREATE EXTENSION IF NOT EXISTS btree_gist;
CREATE TABLE IF NOT EXISTS contracts (
  id BIGSERIAL PRIMARY KEY,
  public_id UUID NOT NULL UNIQUE,
  instructor_id TEXT NOT NULL REFERENCES instructors(id) ON DELETE RESTRICT,
  person_id TEXT NOT NULL REFERENCES persons(id) ON DELETE RESTRICT,
  subject_id TEXT NOT NULL REFERENCES subjects(id) ON DELETE RESTRICT,
  period_id TEXT NOT NULL REFERENCES periods(id) ON DELETE RESTRICT,
  hours_load INTEGER NOT NULL CHECK (hours_load > 0),
  hourly_rate_cents BIGINT NOT NULL CHECK (hourly_rate_cents >= 0),
  start_date DATE NOT NULL,
  end_date DATE,
  created_by TEXT,
  created_at TIMESTAMPTZ NOT NULL,
  CHECK (end_date IS NULL OR end_date > start_date),
  CONSTRAINT contracts_no_overlap EXCLUDE USING gist (
    instructor_id WITH =,
    daterange(start_date, end_date, '[)') WITH &&
  )
);
`,
	},
	{
		version:     5,
		description: "provisioned users",
		sql: `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL,
  password_hash TEXT NOT NULL,
  role TEXT NOT NULL,
  person_id TEXT REFERENCES persons(id) ON DELETE SET NULL,
  disabled BOOLEAN NOT NULL DEFAULT FALSE,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  CONSTRAINT users_username_key UNIQUE (username)
);
`,
	},
}

func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire migration connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockKey); err != nil {
		return fmt.Errorf("lock migrations: %w", err)
	}
	defer func() {
		_, _ = conn.Exec(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", migrationLockKey)
	}()

	if _, err := conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var current int
	if err := conn.QueryRow(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		err := pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.sql); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", m.version)
			return err
		})
		if err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", m.version, m.description, err)
		}
	}
	return nil
}
