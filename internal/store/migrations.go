package store

import (
	"database/sql"
	"fmt"
	"sort"
)

// Migration represents a schema migration step.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// MigrationStatus reports the current and available migration versions.
type MigrationStatus struct {
	CurrentVersion   int             `json:"current_version"`
	AvailableVersion int             `json:"available_version"`
	Pending          []MigrationInfo `json:"pending"`
}

// MigrationInfo describes a single migration.
type MigrationInfo struct {
	Version     int    `json:"version"`
	Description string `json:"description"`
}

// migrations is the ordered list of all schema migrations.
var migrations = []Migration{
	{
		Version:     1,
		Description: "reference catalog: persons, instructors, subjects, periods, credential types",
		SQL: `
CREATE TABLE IF NOT EXISTS persons (
  id TEXT PRIMARY KEY,
  full_name TEXT NOT NULL,
  national_id TEXT,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS instructors (
  id TEXT PRIMARY KEY,
  person_id TEXT NOT NULL UNIQUE,
  registered_at TEXT NOT NULL,
  FOREIGN KEY (person_id) REFERENCES persons(id) ON DELETE RESTRICT
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
		Version:     2,
		Description: "content-addressed blobs",
		SQL: `
CREATE TABLE IF NOT EXISTS blobs (
  id TEXT PRIMARY KEY,
  sha256 TEXT NOT NULL UNIQUE,
  size_bytes INTEGER NOT NULL CHECK (size_bytes >= 0),
  media_type TEXT NOT NULL,
  filename TEXT,
  storage_backend TEXT NOT NULL,
  blob_key TEXT NOT NULL UNIQUE,
  uploaded_by TEXT,
  created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_blobs_created_at ON blobs(created_at);
`,
	},
	{
		Version:     3,
		Description: "documents and titles with verification state",
		SQL: `
CREATE TABLE IF NOT EXISTS documents (
  id TEXT PRIMARY KEY,
  person_id TEXT NOT NULL,
  type_id TEXT NOT NULL,
  description TEXT,
  blob_id TEXT,
  state TEXT NOT NULL CHECK (state IN ('pending', 'approved', 'rejected', 'observed')),
  justification TEXT,
  decided_by TEXT,
  decided_at TEXT,
  is_current INTEGER NOT NULL DEFAULT 1,
  submitted_by TEXT,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  FOREIGN KEY (person_id) REFERENCES persons(id) ON DELETE RESTRICT,
  FOREIGN KEY (type_id) REFERENCES credential_types(id) ON DELETE RESTRICT,
  FOREIGN KEY (blob_id) REFERENCES blobs(id) ON DELETE RESTRICT
);

CREATE TABLE IF NOT EXISTS titles (
  id TEXT PRIMARY KEY,
  person_id TEXT NOT NULL,
  type_id TEXT NOT NULL,
  description TEXT,
  blob_id TEXT,
  state TEXT NOT NULL CHECK (state IN ('pending', 'approved', 'rejected', 'observed')),
  justification TEXT,
  decided_by TEXT,
  decided_at TEXT,
  submitted_by TEXT,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  FOREIGN KEY (person_id) REFERENCES persons(id) ON DELETE RESTRICT,
  FOREIGN KEY (type_id) REFERENCES credential_types(id) ON DELETE RESTRICT,
  FOREIGN KEY (blob_id) REFERENCES blobs(id) ON DELETE RESTRICT
);

CREATE INDEX IF NOT EXISTS idx_documents_blob_id ON documents(blob_id);
CREATE INDEX IF NOT EXISTS idx_documents_person_type ON documents(person_id, type_id);
CREATE INDEX IF NOT EXISTS idx_titles_blob_id ON titles(blob_id);
CREATE INDEX IF NOT EXISTS idx_titles_person_id ON titles(person_id);
`,
	},
	{
		Version:     4,
		Description: "instructor contracts",
		SQL: `
CREATE TABLE IF NOT EXISTS contracts (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  public_id TEXT NOT NULL UNIQUE,
  instructor_id TEXT NOT NULL,
  person_id TEXT NOT NULL,
  subject_id TEXT NOT NULL,
  period_id TEXT NOT NULL,
  hours_load INTEGER NOT NULL CHECK (hours_load > 0),
  hourly_rate_cents INTEGER NOT NULL CHECK (hourly_rate_cents >= 0),
  start_date TEXT NOT NULL,
  end_date TEXT,
  created_by TEXT,
  created_at TEXT NOT NULL,
  CHECK (end_date IS NULL OR end_date > start_date),
  FOREIGN KEY (instructor_id) REFERENCES instructors(id) ON DELETE RESTRICT,
  FOREIGN KEY (person_id) REFERENCES persons(id) ON DELETE RESTRICT,
  FOREIGN KEY (subject_id) REFERENCES subjects(id) ON DELETE RESTRICT,
  FOREIGN KEY (period_id) REFERENCES periods(id) ON DELETE RESTRICT
);

CREATE INDEX IF NOT EXISTS idx_contracts_instructor_start ON contracts(instructor_id, start_date);
`,
	},
	{
		Version:     5,
		Description: "provisioned users",
		SQL: `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  role TEXT NOT NULL,
  person_id TEXT,
  disabled INTEGER NOT NULL DEFAULT 0,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  FOREIGN KEY (person_id) REFERENCES persons(id) ON DELETE SET NULL
);
`,
	},
}

func ensureMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`)
	return err
}

func currentVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		return 0, err
	}
	return version, nil
}

func sortedMigrations() []Migration {
	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })
	return sorted
}

func runMigrations(db *sql.DB) error {
	if err := ensureMigrationsTable(db); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	current, err := currentVersion(db)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	for _, m := range sortedMigrations() {
		if m.Version <= current {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version, applied_at) VALUES (?, datetime('now'))", m.Version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// MigrationPlan returns the current migration status without applying anything.
func MigrationPlan(db *sql.DB) (*MigrationStatus, error) {
	if err := ensureMigrationsTable(db); err != nil {
		return nil, err
	}

	current, err := currentVersion(db)
	if err != nil {
		return nil, err
	}

	sorted := sortedMigrations()
	available := 0
	if len(sorted) > 0 {
		available = sorted[len(sorted)-1].Version
	}

	var pending []MigrationInfo
	for _, m := range sorted {
		if m.Version > current {
			pending = append(pending, MigrationInfo{Version: m.Version, Description: m.Description})
		}
	}

	return &MigrationStatus{
		CurrentVersion:   current,
		AvailableVersion: available,
		Pending:          pending,
	}, nil
}

// OpenRaw opens the SQLite file without applying migrations.
func OpenRaw(path string) (*sql.DB, error) {
	dsn, err := sqliteDSN(path)
	if err != nil {
		return nil, err
	}
	return sql.Open("sqlite", dsn)
}
