package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"credvault/internal/auth"
	"credvault/internal/models"
	"credvault/internal/store"
)

// CatalogService imports and lists the reference entities credentials and
// contracts point at.
type CatalogService struct {
	catalog store.CatalogStore
	logger  *slog.Logger
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(catalog store.CatalogStore, logger *slog.Logger) *CatalogService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogService{catalog: catalog, logger: logger.With("component", "catalog")}
}

// Import validates and upserts a catalog in one transaction.
func (s *CatalogService) Import(ctx context.Context, principal auth.Principal, catalog models.Catalog) (store.CatalogImportResult, error) {
	var zero store.CatalogImportResult
	if s == nil || s.catalog == nil {
		return zero, internalError(fmt.Errorf("catalog service is not configured"))
	}
	if !principal.Can(auth.CapCatalogManage) {
		return zero, forbidden(fmt.Errorf("not allowed to import the catalog"))
	}

	normalized, err := s.normalizeCatalog(ctx, catalog)
	if err != nil {
		return zero, err
	}
	result, err := s.catalog.ImportCatalog(ctx, normalized)
	if err != nil {
		return zero, err
	}
	s.logger.Info("catalog imported",
		"persons", result.Persons,
		"instructors", result.Instructors,
		"subjects", result.Subjects,
		"periods", result.Periods,
		"credential_types", result.CredentialTypes,
	)
	return result, nil
}

// ListCredentialTypes returns types of one kind, or all types when kind is empty.
func (s *CatalogService) ListCredentialTypes(ctx context.Context, rawKind string) ([]models.CredentialType, error) {
	if s == nil || s.catalog == nil {
		return nil, internalError(fmt.Errorf("catalog service is not configured"))
	}
	var kind models.CredentialKind
	if strings.TrimSpace(rawKind) != "" {
		parsed, err := models.ParseCredentialKind(rawKind)
		if err != nil {
			return nil, badRequestCode(err, ErrCodeInvalidQuery)
		}
		kind = parsed
	}
	types, err := s.catalog.ListCredentialTypes(ctx, kind)
	if err != nil {
		return nil, err
	}
	if types == nil {
		types = []models.CredentialType{}
	}
	return types, nil
}

func (s *CatalogService) normalizeCatalog(ctx context.Context, in models.Catalog) (models.Catalog, error) {
	out := models.Catalog{}
	persons := map[string]struct{}{}

	for i, person := range in.Persons {
		id, err := normalizeReferenceID(fmt.Sprintf("persons[%d].id", i), person.ID)
		if err != nil {
			return out, catalogError(err)
		}
		name := strings.TrimSpace(person.FullName)
		if name == "" {
			return out, badRequestCode(fmt.Errorf("persons[%d].full_name is required", i), ErrCodeInvalidCatalog)
		}
		persons[id] = struct{}{}
		out.Persons = append(out.Persons, models.Person{ID: id, FullName: name, NationalID: strings.TrimSpace(person.NationalID)})
	}

	for i, instructor := range in.Instructors {
		id, err := normalizeReferenceID(fmt.Sprintf("instructors[%d].id", i), instructor.ID)
		if err != nil {
			return out, catalogError(err)
		}
		personID, err := normalizeReferenceID(fmt.Sprintf("instructors[%d].person_id", i), instructor.PersonID)
		if err != nil {
			return out, catalogError(err)
		}
		if _, ok := persons[personID]; !ok {
			existing, err := s.catalog.GetPerson(ctx, personID)
			if err != nil {
				return out, err
			}
			if existing == nil {
				return out, badRequestCode(fmt.Errorf("instructors[%d]: person %s not found", i, personID), ErrCodeInvalidCatalog)
			}
		}
		out.Instructors = append(out.Instructors, models.Instructor{ID: id, PersonID: personID})
	}

	for i, subject := range in.Subjects {
		id, err := normalizeReferenceID(fmt.Sprintf("subjects[%d].id", i), subject.ID)
		if err != nil {
			return out, catalogError(err)
		}
		out.Subjects = append(out.Subjects, models.Subject{ID: id, Name: strings.TrimSpace(subject.Name)})
	}

	for i, period := range in.Periods {
		id, err := normalizeReferenceID(fmt.Sprintf("periods[%d].id", i), period.ID)
		if err != nil {
			return out, catalogError(err)
		}
		out.Periods = append(out.Periods, models.Period{ID: id, Name: strings.TrimSpace(period.Name)})
	}

	for i, credType := range in.CredentialTypes {
		id, err := normalizeReferenceID(fmt.Sprintf("credential_types[%d].id", i), credType.ID)
		if err != nil {
			return out, catalogError(err)
		}
		kind, err := models.ParseCredentialKind(string(credType.Kind))
		if err != nil {
			return out, badRequestCode(fmt.Errorf("credential_types[%d]: %w", i, err), ErrCodeInvalidCatalog)
		}
		name := strings.TrimSpace(credType.Name)
		if name == "" {
			return out, badRequestCode(fmt.Errorf("credential_types[%d].name is required", i), ErrCodeInvalidCatalog)
		}
		out.CredentialTypes = append(out.CredentialTypes, models.CredentialType{ID: id, Kind: kind, Name: name})
	}

	return out, nil
}

func catalogError(err error) error {
	var apiErr apiError
	if errors.As(err, &apiErr) {
		apiErr.errCode = ErrCodeInvalidCatalog
		return apiErr
	}
	return badRequestCode(err, ErrCodeInvalidCatalog)
}
