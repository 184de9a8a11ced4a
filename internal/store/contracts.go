package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"credvault/internal/models"
)

const contractColumns = "id, public_id, instructor_id, person_id, subject_id, period_id, hours_load, hourly_rate_cents, start_date, end_date, created_by, created_at"

// CreateContract inserts a contract after checking the instructor's existing
// intervals inside the same write transaction. The connection opens write
// transactions with BEGIN IMMEDIATE, so concurrent creates serialize on the check.
func (s *Store) CreateContract(ctx context.Context, contract *models.Contract) (err error) {
	if contract == nil {
		return fmt.Errorf("contract is required")
	}
	if err := contract.Interval().Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(contract.PublicID) == "" {
		contract.PublicID = uuid.NewString()
	}
	if contract.CreatedAt.IsZero() {
		contract.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	existing, err := listContractsTx(ctx, tx, contract.InstructorID)
	if err != nil {
		return err
	}
	candidate := contract.Interval()
	for _, other := range existing {
		if candidate.Overlaps(other.Interval()) {
			return ErrContractOverlap
		}
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO contracts (public_id, instructor_id, person_id, subject_id, period_id, hours_load,
			hourly_rate_cents, start_date, end_date, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, contract.PublicID, contract.InstructorID, contract.PersonID, contract.SubjectID, contract.PeriodID,
		contract.HoursLoad, contract.HourlyRateCents, models.FormatDate(contract.StartDate), nullDate(contract.EndDate),
		nullIfEmpty(contract.CreatedBy), dbFormatTime(contract.CreatedAt))
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	contract.ID = id
	return nil
}

// GetContract returns a contract by public id, or nil when absent.
func (s *Store) GetContract(ctx context.Context, publicID string) (*models.Contract, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+contractColumns+` FROM contracts WHERE public_id = ?`, publicID)
	return scanContract(row)
}

// ListContractsByInstructor lists an instructor's contracts ordered by start date.
func (s *Store) ListContractsByInstructor(ctx context.Context, instructorID string) ([]models.Contract, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+contractColumns+` FROM contracts WHERE instructor_id = ? ORDER BY start_date ASC, id ASC`, instructorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectContracts(rows)
}

// DeleteContract removes a contract by public id.
func (s *Store) DeleteContract(ctx context.Context, publicID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM contracts WHERE public_id = ?`, publicID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func listContractsTx(ctx context.Context, tx *sql.Tx, instructorID string) ([]models.Contract, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+contractColumns+` FROM contracts WHERE instructor_id = ?`, instructorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectContracts(rows)
}

func collectContracts(rows *sql.Rows) ([]models.Contract, error) {
	contracts := []models.Contract{}
	for rows.Next() {
		contract, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		if contract != nil {
			contracts = append(contracts, *contract)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return contracts, nil
}

func scanContract(scanner interface {
	Scan(dest ...any) error
}) (*models.Contract, error) {
	var contract models.Contract
	var startDate string
	var endDate sql.NullString
	var createdBy sql.NullString
	var createdAt string
	err := scanner.Scan(&contract.ID, &contract.PublicID, &contract.InstructorID, &contract.PersonID,
		&contract.SubjectID, &contract.PeriodID, &contract.HoursLoad, &contract.HourlyRateCents,
		&startDate, &endDate, &createdBy, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	contract.CreatedBy = createdBy.String
	if contract.StartDate, err = models.ParseDate(startDate); err != nil {
		return nil, err
	}
	if contract.EndDate, err = parseNullDate(endDate); err != nil {
		return nil, err
	}
	if contract.CreatedAt, err = dbParseTime(createdAt); err != nil {
		return nil, err
	}
	return &contract, nil
}
