package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"credvault/internal/models"
	"credvault/internal/store"
)

const (
	contractColumns        = "id, public_id, instructor_id, person_id, subject_id, period_id, hours_load, hourly_rate_cents, start_date, end_date, created_by, created_at"
	contractCreateAttempts = 3
)

// CreateContract inserts a contract under SERIALIZABLE isolation. The contracts_no_overlap
// exclusion constraint is the final arbiter; serialization failures are retried.
func (s *Store) CreateContract(ctx context.Context, contract *models.Contract) error {
	if contract == nil {
		return errors.New("contract is required")
	}
	if err := contract.Interval().Validate(); err != nil {
		return err
	}
	if contract.PublicID == "" {
		contract.PublicID = uuid.NewString()
	}
	if contract.CreatedAt.IsZero() {
		contract.CreatedAt = time.Now().UTC()
	}

	var err error
	for attempt := 0; attempt < contractCreateAttempts; attempt++ {
		err = s.inTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
			var overlapping bool
			if err := tx.QueryRow(ctx, `
				SELECT EXISTS (
					SELECT 1 FROM contracts
					WHERE instructor_id = $1
					  AND daterange(start_date, end_date, '[)') && daterange($2::date, $3::date, '[)')
				)
			`, contract.InstructorID, contract.StartDate, contract.EndDate).Scan(&overlapping); err != nil {
				return err
			}
			if overlapping {
				return store.ErrContractOverlap
			}
			return tx.QueryRow(ctx, `
				INSERT INTO contracts (public_id, instructor_id, person_id, subject_id, period_id, hours_load,
					hourly_rate_cents, start_date, end_date, created_by, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
				RETURNING id
			`, contract.PublicID, contract.InstructorID, contract.PersonID, contract.SubjectID, contract.PeriodID,
				contract.HoursLoad, contract.HourlyRateCents, contract.StartDate, contract.EndDate,
				nullIfEmpty(contract.CreatedBy), contract.CreatedAt).Scan(&contract.ID)
		})
		code, _ := pgErrorCode(err)
		switch code {
		case codeExclusionViolation:
			return store.ErrContractOverlap
		case codeSerializationFailure:
			continue
		}
		return err
	}
	return err
}

// GetContract returns a contract by public id, or nil when absent or malformed.
func (s *Store) GetContract(ctx context.Context, publicID string) (*models.Contract, error) {
	if _, err := uuid.Parse(publicID); err != nil {
		return nil, nil
	}
	return scanContract(s.pool.QueryRow(ctx, `SELECT `+contractColumns+` FROM contracts WHERE public_id = $1`, publicID))
}

// ListContractsByInstructor lists an instructor's contracts ordered by start date.
func (s *Store) ListContractsByInstructor(ctx context.Context, instructorID string) ([]models.Contract, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+contractColumns+` FROM contracts WHERE instructor_id = $1 ORDER BY start_date ASC, id ASC`, instructorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contracts := []models.Contract{}
	for rows.Next() {
		contract, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, *contract)
	}
	return contracts, rows.Err()
}

// DeleteContract removes a contract by public id.
func (s *Store) DeleteContract(ctx context.Context, publicID string) (bool, error) {
	if _, err := uuid.Parse(publicID); err != nil {
		return false, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM contracts WHERE public_id = $1`, publicID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanContract(row pgx.Row) (*models.Contract, error) {
	var contract models.Contract
	var publicID uuid.UUID
	var createdBy *string
	err := row.Scan(&contract.ID, &publicID, &contract.InstructorID, &contract.PersonID, &contract.SubjectID,
		&contract.PeriodID, &contract.HoursLoad, &contract.HourlyRateCents, &contract.StartDate, &contract.EndDate,
		&createdBy, &contract.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	contract.PublicID = publicID.String()
	contract.CreatedBy = deref(createdBy)
	contract.StartDate = contract.StartDate.UTC()
	if contract.EndDate != nil {
		end := contract.EndDate.UTC()
		contract.EndDate = &end
	}
	contract.CreatedAt = contract.CreatedAt.UTC()
	return &contract, nil
}
