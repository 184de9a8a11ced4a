package store

import (
	"database/sql"
	"net/url"
	"path/filepath"
	"testing"
)

func testRawDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	u := url.URL{Scheme: "file", Path: path}
	db, err := sql.Open("sqlite", u.String())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunMigrationsFreshDB(t *testing.T) {
	db := testRawDB(t)

	if err := runMigrations(db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	version, err := currentVersion(db)
	if err != nil {
		t.Fatalf("current version: %v", err)
	}
	if version != 5 {
		t.Fatalf("expected version 5, got %d", version)
	}

	for _, table := range []string{"persons", "instructors", "subjects", "periods", "credential_types", "blobs", "documents", "titles", "contracts", "users"} {
		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count); err != nil {
			t.Fatalf("check %s: %v", table, err)
		}
		if count != 1 {
			t.Fatalf("%s table not created", table)
		}
	}
}

func TestRunMigrationsIdempotent(t *testing.T) {
	db := testRawDB(t)

	if err := runMigrations(db); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := runMigrations(db); err != nil {
		t.Fatalf("second run: %v", err)
	}

	version, err := currentVersion(db)
	if err != nil {
		t.Fatalf("current version: %v", err)
	}
	if version != 5 {
		t.Fatalf("expected version 5, got %d", version)
	}
}

func TestMigrationPlan(t *testing.T) {
	db := testRawDB(t)

	plan, err := MigrationPlan(db)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.CurrentVersion != 0 || plan.AvailableVersion != 5 {
		t.Fatalf("unexpected plan versions: %+v", plan)
	}
	if len(plan.Pending) != 5 {
		t.Fatalf("expected 5 pending migrations, got %d", len(plan.Pending))
	}

	if err := runMigrations(db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	plan, err = MigrationPlan(db)
	if err != nil {
		t.Fatalf("plan after run: %v", err)
	}
	if len(plan.Pending) != 0 {
		t.Fatalf("expected no pending migrations, got %d", len(plan.Pending))
	}
}

func TestContractsCheckConstraints(t *testing.T) {
	db := testRawDB(t)
	if err := runMigrations(db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	_, err := db.Exec(`INSERT INTO contracts (public_id, instructor_id, person_id, subject_id, period_id,
		hours_load, hourly_rate_cents, start_date, end_date, created_at)
		VALUES ('c1', 'i', 'p', 's', 'pe', 10, 100, '2025-02-01', '2025-01-01', '2025-01-01T00:00:00Z')`)
	if err == nil {
		t.Fatal("expected check constraint to reject inverted interval")
	}
}
