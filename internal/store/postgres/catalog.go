package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"credvault/internal/models"
	"credvault/internal/store"
)

// ImportCatalog upserts every entity of the catalog in one transaction.
func (s *Store) ImportCatalog(ctx context.Context, catalog models.Catalog) (store.CatalogImportResult, error) {
	var result store.CatalogImportResult
	now := time.Now().UTC()

	err := s.inTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		result = store.CatalogImportResult{}
		for _, person := range catalog.Persons {
			if strings.TrimSpace(person.ID) == "" || strings.TrimSpace(person.FullName) == "" {
				return fmt.Errorf("person id and full_name are required")
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO persons (id, full_name, national_id, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $4)
				ON CONFLICT (id) DO UPDATE SET full_name = EXCLUDED.full_name,
					national_id = EXCLUDED.national_id, updated_at = EXCLUDED.updated_at
			`, person.ID, person.FullName, nullIfEmpty(person.NationalID), now); err != nil {
				return fmt.Errorf("person %s: %w", person.ID, err)
			}
			result.Persons++
		}
		for _, instructor := range catalog.Instructors {
			if strings.TrimSpace(instructor.ID) == "" || strings.TrimSpace(instructor.PersonID) == "" {
				return fmt.Errorf("instructor id and person_id are required")
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO instructors (id, person_id, registered_at) VALUES ($1, $2, $3)
				ON CONFLICT (id) DO UPDATE SET person_id = EXCLUDED.person_id
			`, instructor.ID, instructor.PersonID, now); err != nil {
				return fmt.Errorf("instructor %s: %w", instructor.ID, err)
			}
			result.Instructors++
		}
		for _, subject := range catalog.Subjects {
			if strings.TrimSpace(subject.ID) == "" {
				return fmt.Errorf("subject id is required")
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO subjects (id, name) VALUES ($1, $2)
				ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
			`, subject.ID, subject.Name); err != nil {
				return fmt.Errorf("subject %s: %w", subject.ID, err)
			}
			result.Subjects++
		}
		for _, period := range catalog.Periods {
			if strings.TrimSpace(period.ID) == "" {
				return fmt.Errorf("period id is required")
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO periods (id, name) VALUES ($1, $2)
				ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
			`, period.ID, period.Name); err != nil {
				return fmt.Errorf("period %s: %w", period.ID, err)
			}
			result.Periods++
		}
		for _, ct := range catalog.CredentialTypes {
			if strings.TrimSpace(ct.ID) == "" {
				return fmt.Errorf("credential type id is required")
			}
			if _, err := models.ParseCredentialKind(string(ct.Kind)); err != nil {
				return fmt.Errorf("credential type %s: %w", ct.ID, err)
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO credential_types (id, kind, name) VALUES ($1, $2, $3)
				ON CONFLICT (id) DO UPDATE SET kind = EXCLUDED.kind, name = EXCLUDED.name
			`, ct.ID, string(ct.Kind), ct.Name); err != nil {
				return fmt.Errorf("credential type %s: %w", ct.ID, err)
			}
			result.CredentialTypes++
		}
		return nil
	})
	return result, err
}

// GetPerson returns one person, or nil when absent.
func (s *Store) GetPerson(ctx context.Context, id string) (*models.Person, error) {
	var person models.Person
	var nationalID *string
	err := s.pool.QueryRow(ctx, `SELECT id, full_name, national_id FROM persons WHERE id = $1`, id).
		Scan(&person.ID, &person.FullName, &nationalID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	person.NationalID = deref(nationalID)
	return &person, nil
}

// GetInstructor returns one instructor, or nil when absent.
func (s *Store) GetInstructor(ctx context.Context, id string) (*models.Instructor, error) {
	var instructor models.Instructor
	err := s.pool.QueryRow(ctx, `SELECT id, person_id, registered_at FROM instructors WHERE id = $1`, id).
		Scan(&instructor.ID, &instructor.PersonID, &instructor.RegisteredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	instructor.RegisteredAt = instructor.RegisteredAt.UTC()
	return &instructor, nil
}

// GetSubject returns one subject, or nil when absent.
func (s *Store) GetSubject(ctx context.Context, id string) (*models.Subject, error) {
	var subject models.Subject
	err := s.pool.QueryRow(ctx, `SELECT id, name FROM subjects WHERE id = $1`, id).Scan(&subject.ID, &subject.Name)
	if errors.Is(err, pgx.ErrNoRows) {
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
	err := s.pool.QueryRow(ctx, `SELECT id, name FROM periods WHERE id = $1`, id).Scan(&period.ID, &period.Name)
	if errors.Is(err, pgx.ErrNoRows) {
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
	err := s.pool.QueryRow(ctx, `SELECT id, kind, name FROM credential_types WHERE id = $1`, id).Scan(&ct.ID, &kind, &ct.Name)
	if errors.Is(err, pgx.ErrNoRows) {
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
	rows, err := s.pool.Query(ctx, `
		SELECT id, kind, name FROM credential_types
		WHERE $1 = '' OR kind = $1
		ORDER BY kind ASC, name ASC, id ASC
	`, string(kind))
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
	return types, rows.Err()
}
