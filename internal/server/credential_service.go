package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"credvault/internal/auth"
	"credvault/internal/models"
	"credvault/internal/store"
)

// CredentialService manages documents and titles. Both kinds share one code path.
type CredentialService struct {
	credentials store.CredentialStore
	catalog     store.CatalogStore
	blobs       *BlobService
	logger      *slog.Logger
	now         func() time.Time
}

// SubmitCredentialInput describes a new document or title.
type SubmitCredentialInput struct {
	PersonID    string
	TypeID      string
	Description string
	BlobSHA256  string
}

// CredentialDeleteResult reports a deleted record and what happened to its blob.
type CredentialDeleteResult struct {
	Credential     models.Credential `json:"credential"`
	BlobReleased   bool              `json:"blob_released"`
	BlobReferences int               `json:"blob_references"`
}

// NewCredentialService constructs a CredentialService.
func NewCredentialService(credentials store.CredentialStore, catalog store.CatalogStore, blobs *BlobService, logger *slog.Logger) *CredentialService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialService{
		credentials: credentials,
		catalog:     catalog,
		blobs:       blobs,
		logger:      logger.With("component", "credentials"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Submit creates a record in the pending state.
func (s *CredentialService) Submit(ctx context.Context, principal auth.Principal, kind models.CredentialKind, in SubmitCredentialInput) (models.Credential, error) {
	var zero models.Credential
	if s == nil || s.credentials == nil || s.catalog == nil {
		return zero, internalError(fmt.Errorf("credential service is not configured"))
	}

	personID, err := normalizeReferenceID("person_id", in.PersonID)
	if err != nil {
		return zero, err
	}
	if !canSubmitFor(principal, personID) {
		return zero, forbidden(fmt.Errorf("not allowed to submit %s for person %s", kind.Plural(), personID))
	}
	typeID, err := normalizeReferenceID("type_id", in.TypeID)
	if err != nil {
		return zero, err
	}

	person, err := s.catalog.GetPerson(ctx, personID)
	if err != nil {
		return zero, err
	}
	if person == nil {
		return zero, badRequestCode(fmt.Errorf("person %s not found", personID), ErrCodeInvalidReference)
	}
	credType, err := s.catalog.GetCredentialType(ctx, typeID)
	if err != nil {
		return zero, err
	}
	if credType == nil {
		return zero, badRequestCode(fmt.Errorf("credential type %s not found", typeID), ErrCodeInvalidCredentialType)
	}
	if credType.Kind != kind {
		return zero, badRequestCode(fmt.Errorf("credential type %s is a %s type", typeID, credType.Kind), ErrCodeInvalidCredentialType)
	}

	record := &models.Credential{
		Kind:        kind,
		PersonID:    personID,
		TypeID:      typeID,
		Description: strings.TrimSpace(in.Description),
		State:       models.StatePending,
		SubmittedBy: principal.UserID,
		CreatedAt:   s.now(),
	}
	if strings.TrimSpace(in.BlobSHA256) != "" {
		blob, err := s.blobs.Get(ctx, in.BlobSHA256)
		if err != nil {
			if httpStatusFromError(err) == http.StatusNotFound {
				return zero, badRequestCode(fmt.Errorf("blob %s not found", models.NormalizeDigest(in.BlobSHA256)), ErrCodeInvalidReference)
			}
			return zero, err
		}
		if !principal.Can(auth.CapCredentialManage) && blob.UploadedBy != principal.UserID {
			return zero, forbidden(fmt.Errorf("blob %s was uploaded by another user", blob.SHA256))
		}
		record.BlobID = blob.ID
	}

	if err := s.credentials.CreateCredential(ctx, record); err != nil {
		return zero, err
	}
	stored, err := s.credentials.GetCredential(ctx, kind, record.ID)
	if err != nil {
		return zero, err
	}
	if stored == nil {
		return zero, internalError(fmt.Errorf("%s not found after create", kind))
	}
	s.logger.Debug("credential submitted", "kind", kind, "id", stored.ID, "person_id", personID)
	return *stored, nil
}

// Get returns one record visible to principal.
func (s *CredentialService) Get(ctx context.Context, principal auth.Principal, kind models.CredentialKind, id string) (models.Credential, error) {
	var zero models.Credential
	if s == nil || s.credentials == nil {
		return zero, internalError(fmt.Errorf("credential service is not configured"))
	}
	record, err := s.credentials.GetCredential(ctx, kind, strings.TrimSpace(id))
	if err != nil {
		return zero, err
	}
	if record == nil {
		return zero, notFoundCode(fmt.Errorf("%s not found", kind), ErrCodeCredentialNotFound)
	}
	if !principal.ActsFor(record.PersonID, auth.CapCredentialManage) {
		return zero, forbidden(fmt.Errorf("not allowed to read %s %s", kind, record.ID))
	}
	return *record, nil
}

// ListByPerson returns the records of one person, newest first.
func (s *CredentialService) ListByPerson(ctx context.Context, principal auth.Principal, kind models.CredentialKind, personID string) ([]models.Credential, error) {
	if s == nil || s.credentials == nil || s.catalog == nil {
		return nil, internalError(fmt.Errorf("credential service is not configured"))
	}
	personID, err := normalizeReferenceID("person_id", personID)
	if err != nil {
		return nil, err
	}
	if !principal.ActsFor(personID, auth.CapCredentialManage) {
		return nil, forbidden(fmt.Errorf("not allowed to list %s for person %s", kind.Plural(), personID))
	}
	person, err := s.catalog.GetPerson(ctx, personID)
	if err != nil {
		return nil, err
	}
	if person == nil {
		return nil, notFoundCode(fmt.Errorf("person %s not found", personID), ErrCodePersonNotFound)
	}
	records, err := s.credentials.ListCredentialsByPerson(ctx, kind, personID)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []models.Credential{}
	}
	return records, nil
}

// Delete removes a record. With releaseBlob set it then releases the record's
// blob when this was the last reference; a failed release is logged and does
// not fail the delete.
func (s *CredentialService) Delete(ctx context.Context, principal auth.Principal, kind models.CredentialKind, id string, releaseBlob bool) (CredentialDeleteResult, error) {
	var result CredentialDeleteResult
	if s == nil || s.credentials == nil {
		return result, internalError(fmt.Errorf("credential service is not configured"))
	}
	if !principal.Can(auth.CapCredentialManage) {
		return result, forbidden(fmt.Errorf("not allowed to delete %s", kind.Plural()))
	}

	deleted, err := s.credentials.DeleteCredential(ctx, kind, strings.TrimSpace(id))
	if err != nil {
		return result, err
	}
	if deleted == nil {
		return result, notFoundCode(fmt.Errorf("%s not found", kind), ErrCodeCredentialNotFound)
	}
	result.Credential = *deleted

	if releaseBlob && deleted.BlobID != "" && s.blobs != nil {
		released, err := s.blobs.releaseIfUnreferenced(ctx, deleted.BlobID)
		if err != nil {
			s.logger.Warn("release blob after credential delete", "kind", kind, "id", deleted.ID, "blob_id", deleted.BlobID, "error", err)
		} else {
			result.BlobReleased = released.Deleted
			result.BlobReferences = released.References
		}
	}
	return result, nil
}

func canSubmitFor(principal auth.Principal, personID string) bool {
	if principal.Can(auth.CapCredentialManage) {
		return true
	}
	return principal.Can(auth.CapCredentialSubmit) && principal.PersonID != "" && principal.PersonID == personID
}
