package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"credvault/internal/auth"
	"credvault/internal/metrics"
	"credvault/internal/models"
	"credvault/internal/store"
)

// ContractService creates immutable contracts while keeping each instructor's
// intervals disjoint.
type ContractService struct {
	contracts store.ContractStore
	catalog   store.CatalogStore
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// CreateContractInput carries the raw request fields.
type CreateContractInput struct {
	InstructorID    string
	PersonID        string
	SubjectID       string
	PeriodID        string
	HoursLoad       int
	HourlyRateCents int64
	StartDate       string
	EndDate         string
}

// NewContractService constructs a ContractService.
func NewContractService(contracts store.ContractStore, catalog store.CatalogStore, m *metrics.Metrics, logger *slog.Logger) *ContractService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContractService{
		contracts: contracts,
		catalog:   catalog,
		metrics:   m,
		logger:    logger.With("component", "contracts"),
	}
}

// Create validates references and the interval, then inserts under the store's
// exclusivity guard.
func (s *ContractService) Create(ctx context.Context, principal auth.Principal, in CreateContractInput) (models.Contract, error) {
	var zero models.Contract
	if s == nil || s.contracts == nil || s.catalog == nil {
		return zero, internalError(fmt.Errorf("contract service is not configured"))
	}
	if !principal.Can(auth.CapContractCreate) {
		return zero, forbidden(fmt.Errorf("not allowed to create contracts"))
	}

	contract, err := s.buildContract(ctx, in)
	if err != nil {
		return zero, err
	}
	contract.CreatedBy = principal.UserID

	if err := s.contracts.CreateContract(ctx, contract); err != nil {
		if errors.Is(err, store.ErrContractOverlap) {
			s.metrics.IncrementContractOverlap()
			s.logger.Info("contract rejected", "instructor_id", contract.InstructorID, "reason", "overlap")
			return zero, overlapError()
		}
		if errors.Is(err, models.ErrEmptyInterval) {
			return zero, badRequestCode(err, ErrCodeInvalidDateRange)
		}
		return zero, err
	}

	s.metrics.IncrementContractCreated()
	s.logger.Info("contract created", "public_id", contract.PublicID, "instructor_id", contract.InstructorID)
	return *contract, nil
}

func (s *ContractService) buildContract(ctx context.Context, in CreateContractInput) (*models.Contract, error) {
	instructorID, err := normalizeReferenceID("instructor_id", in.InstructorID)
	if err != nil {
		return nil, err
	}
	personID, err := normalizeReferenceID("person_id", in.PersonID)
	if err != nil {
		return nil, err
	}
	subjectID, err := normalizeReferenceID("subject_id", in.SubjectID)
	if err != nil {
		return nil, err
	}
	periodID, err := normalizeReferenceID("period_id", in.PeriodID)
	if err != nil {
		return nil, err
	}
	if in.HoursLoad <= 0 {
		return nil, badRequestCode(fmt.Errorf("hours_load must be positive"), ErrCodeInvalidContractFigures)
	}
	if in.HourlyRateCents < 0 {
		return nil, badRequestCode(fmt.Errorf("hourly_rate_cents must be >= 0"), ErrCodeInvalidContractFigures)
	}

	start, err := models.ParseDate(in.StartDate)
	if err != nil {
		return nil, badRequestCode(fmt.Errorf("start_date: %w", err), ErrCodeInvalidDateRange)
	}
	end, err := models.ParseOptionalDate(in.EndDate)
	if err != nil {
		return nil, badRequestCode(fmt.Errorf("end_date: %w", err), ErrCodeInvalidDateRange)
	}
	interval := models.Interval{Start: start, End: end}
	if err := interval.Validate(); err != nil {
		return nil, badRequestCode(err, ErrCodeInvalidDateRange)
	}

	instructor, err := s.catalog.GetInstructor(ctx, instructorID)
	if err != nil {
		return nil, err
	}
	if instructor == nil {
		return nil, notFoundCode(fmt.Errorf("instructor %s is not registered", instructorID), ErrCodeInstructorNotFound)
	}
	if err := s.requireReference(ctx, "person", personID); err != nil {
		return nil, err
	}
	if err := s.requireReference(ctx, "subject", subjectID); err != nil {
		return nil, err
	}
	if err := s.requireReference(ctx, "period", periodID); err != nil {
		return nil, err
	}

	return &models.Contract{
		InstructorID:    instructorID,
		PersonID:        personID,
		SubjectID:       subjectID,
		PeriodID:        periodID,
		HoursLoad:       in.HoursLoad,
		HourlyRateCents: in.HourlyRateCents,
		StartDate:       start,
		EndDate:         end,
	}, nil
}

func (s *ContractService) requireReference(ctx context.Context, entity, id string) error {
	var (
		found bool
		err   error
	)
	switch entity {
	case "person":
		var p *models.Person
		p, err = s.catalog.GetPerson(ctx, id)
		found = p != nil
	case "subject":
		var sub *models.Subject
		sub, err = s.catalog.GetSubject(ctx, id)
		found = sub != nil
	case "period":
		var per *models.Period
		per, err = s.catalog.GetPeriod(ctx, id)
		found = per != nil
	default:
		return internalError(fmt.Errorf("unknown reference %s", entity))
	}
	if err != nil {
		return err
	}
	if !found {
		return badRequestCode(fmt.Errorf("%s %s not found", entity, id), ErrCodeInvalidReference)
	}
	return nil
}

// Get returns one contract by its public id.
func (s *ContractService) Get(ctx context.Context, principal auth.Principal, publicID string) (models.Contract, error) {
	var zero models.Contract
	if s == nil || s.contracts == nil {
		return zero, internalError(fmt.Errorf("contract service is not configured"))
	}
	if !principal.Can(auth.CapContractList) {
		return zero, forbidden(fmt.Errorf("not allowed to read contracts"))
	}
	publicID, err := normalizePublicID(publicID)
	if err != nil {
		return zero, err
	}
	contract, err := s.contracts.GetContract(ctx, publicID)
	if err != nil {
		return zero, err
	}
	if contract == nil {
		return zero, notFoundCode(fmt.Errorf("contract not found"), ErrCodeContractNotFound)
	}
	return *contract, nil
}

// ListByInstructor returns an instructor's contracts ordered by start date.
func (s *ContractService) ListByInstructor(ctx context.Context, principal auth.Principal, instructorID string) ([]models.Contract, error) {
	if s == nil || s.contracts == nil || s.catalog == nil {
		return nil, internalError(fmt.Errorf("contract service is not configured"))
	}
	if !principal.Can(auth.CapContractList) {
		return nil, forbidden(fmt.Errorf("not allowed to list contracts"))
	}
	instructorID, err := normalizeReferenceID("instructor_id", instructorID)
	if err != nil {
		return nil, err
	}
	instructor, err := s.catalog.GetInstructor(ctx, instructorID)
	if err != nil {
		return nil, err
	}
	if instructor == nil {
		return nil, notFoundCode(fmt.Errorf("instructor %s is not registered", instructorID), ErrCodeInstructorNotFound)
	}
	contracts, err := s.contracts.ListContractsByInstructor(ctx, instructorID)
	if err != nil {
		return nil, err
	}
	if contracts == nil {
		contracts = []models.Contract{}
	}
	return contracts, nil
}

// Delete hard-deletes a contract and returns it.
func (s *ContractService) Delete(ctx context.Context, principal auth.Principal, publicID string) (models.Contract, error) {
	var zero models.Contract
	if s == nil || s.contracts == nil {
		return zero, internalError(fmt.Errorf("contract service is not configured"))
	}
	if !principal.Can(auth.CapContractDelete) {
		return zero, forbidden(fmt.Errorf("not allowed to delete contracts"))
	}
	publicID, err := normalizePublicID(publicID)
	if err != nil {
		return zero, err
	}
	contract, err := s.contracts.GetContract(ctx, publicID)
	if err != nil {
		return zero, err
	}
	if contract == nil {
		return zero, notFoundCode(fmt.Errorf("contract not found"), ErrCodeContractNotFound)
	}
	deleted, err := s.contracts.DeleteContract(ctx, publicID)
	if err != nil {
		return zero, err
	}
	if !deleted {
		return zero, notFoundCode(fmt.Errorf("contract not found"), ErrCodeContractNotFound)
	}
	s.logger.Info("contract deleted", "public_id", publicID, "instructor_id", contract.InstructorID)
	return *contract, nil
}

func overlapError() error {
	return apiError{
		status:  http.StatusConflict,
		code:    "overlap_detected",
		errCode: ErrCodeContractOverlap,
		err:     fmt.Errorf("overlap detected"),
	}
}
