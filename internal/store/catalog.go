package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"credvault/internal/models"
)

// ImportCatalog upserts every entity of the catalog in one transaction.
func (s *Store) ImportCatalog(ctx context.Context, catalog models.Catalog) (result CatalogImportResult, err error) {
	now := dbFormatTime(time.Now().UTC())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, person := range catalog.Persons {
		if strings.TrimSpace(person.ID) == "" || strings.TrimSpace(person.FullName) == "" {
			return result, fmt.Errorf("person id and full_name are required")
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO persons (id, full_name, national_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET full_name = excluded.full_name,
				national_id = excluded.national_id, updated_at = excluded.updated_at
		`, person.ID, person.FullName, nullIfEmpty(person.NationalID), now, now); err != nil {
			return result, fmt.Errorf("person %s: %w", person.ID, err)
		}
		result.Persons++
	}

	for _, instructor := range catalog.Instructors {
		if strings.TrimSpace(instructor.ID) == "" || strings.TrimSpace(instructor.PersonID) == "" {
			return result, fmt.Errorf("instructor id and person_id are required")
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO instructors (id, person_id, registered_at)
			VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET person_id = excluded.person_id
		`, instructor.ID, instructor.PersonID, now); err != nil {
			return result, fmt.Errorf("instructor %s: %w", instructor.ID, err)
		}
		result.Instructors++
	}

	for _, subject := range catalog.Subjects {
		if strings.TrimSpace(subject.ID) == "" {
			return result, fmt.Errorf("subject id is required")
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO subjects (id, name) VALUES (?, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name
		`, subject.ID, subject.Name); err != nil {
			return result, fmt.Errorf("subject %s: %w", subject.ID, err)
		}
		result.Subjects++
	}

	for _, period := range catalog.Periods {
		if strings.TrimSpace(period.ID) == "" {
			return result, fmt.Errorf("period id is required")
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO periods (id, name) VALUES (?, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name
		`, period.ID, period.Name); err != nil {
			return result, fmt.Errorf("period %s: %w", period.ID, err)
		}
		result.Periods++
	}

	for _, ct := range catalog.CredentialTypes {
		if strings.TrimSpace(ct.ID) == "" {
			return result, fmt.Errorf("credential type id is required")
		}
		if _, err = models.ParseCredentialKind(string(ct.Kind)); err != nil {
			return result, fmt.Errorf("credential type %s: %w", ct.ID, err)
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO credential_types (id, kind, name) VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET kind = excluded.kind, name = excluded.name
		`, ct.ID, string(ct.Kind), ct.Name); err != nil {
			return result, fmt.Errorf("credential type %s: %w", ct.ID, err)
		}
		result.CredentialTypes++
	}

	if err = tx.Commit(); err != nil {
		return result, err
	}
	return result, nil
}

// GetPerson returns one person, or nil when absent.
func (s *Store) GetPerson(ctx context.Context, id string) (*models.Person, error) {
	var person models.Person
	var nationalID sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT id, full_name, national_id FROM persons WHERE id = ?`, id).
		Scan(&person.ID, &person.FullName, &nationalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	person.NationalID = nationalID.String
	return &person, nil
}

// GetInstructor returns one instructor, or nil when absent.
func (s *Store) GetInstructor(ctx context.Context, id string) (*models.Instructor, error) {
	var instructor models.Instructor
	var registeredAt string
	err := s.db.QueryRowContext(ctx, `SELECT id, person_id, registered_at FROM instructors WHERE id = ?`, id).
		Scan(&instructor.ID, &instructor.PersonID, &registeredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if instructor.RegisteredAt, err = dbParseTime(registeredAt); err != nil {
		return nil, err
	}
	return &instructor, nil
}

// GetSubject returns one subject, or nil when absent.
func (s *Store) GetSubject(ctx context.Context, id string) (*models.Subject, error) {
	var subject models.Subject
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM subjects WHERE id = ?`, id).Scan(&subject.ID, &subject.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &subject, nil
}

// GetPeriod returns one period, or nil when absent.
func (s *Store) GetPeriod(ctx context.Context, id string) (*models.Period, error) {
	var period models.Period
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM periods WHERE id = ?`, id).Scan(&period.ID, &period.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &period, nil
}

// GetCredentialType returns one credential type, or nil when absent.
func (s *Store) GetCredentialType(ctx context.Context, id string) (*models.CredentialType, error) {
	var ct models.CredentialType
	var kind string
	err := s.db.QueryRowContext(ctx, `SELECT id, kind, name FROM credential_types WHERE id = ?`, id).Scan(&ct.ID, &kind, &ct.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ct.Kind = models.CredentialKind(kind)
	return &ct, nil
}

// ListCredentialTypes lists credential types, optionally filtered by kind.
func (s *Store) ListCredentialTypes(ctx context.Context, kind models.CredentialKind) ([]models.CredentialType, error) {
	query := `SELECT id, kind, name FROM credential_types`
	args := []any{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY kind ASC, name ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	types := []models.CredentialType{}
	for rows.Next() {
		var ct models.CredentialType
		var k string
		if err := rows.Scan(&ct.ID, &k, &ct.Name); err != nil {
			return nil, err
		}
		ct.Kind = models.CredentialKind(k)
		types = append(types, ct)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return types, nil
}
