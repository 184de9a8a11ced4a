package api

import (
	"time"

	"credvault/internal/models"
)

// ErrorResponse is a generic JSON error wrapper.
type ErrorResponse struct {
	Error     string         `json:"error"`
	Code      string         `json:"code,omitempty"`
	ErrorCode int            `json:"error_code,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// InfoResponse is the response from GET /v1/info.
type InfoResponse struct {
	Driver        string `json:"driver"`
	SchemaVersion int    `json:"schema_version"`
	BlobBackend   string `json:"blob_backend"`
	Blobs         int    `json:"blobs"`
	Documents     int    `json:"documents"`
	Titles        int    `json:"titles"`
	Contracts     int    `json:"contracts"`
}

// AuthMeResponse describes the identity behind the current request.
type AuthMeResponse struct {
	Authenticated bool     `json:"authenticated"`
	AuthRequired  bool     `json:"auth_required"`
	AuthType      string   `json:"auth_type,omitempty"`
	UserID        string   `json:"user_id,omitempty"`
	Username      string   `json:"username,omitempty"`
	Role          string   `json:"role,omitempty"`
	PersonID      string   `json:"person_id,omitempty"`
	Capabilities  []string `json:"capabilities,omitempty"`
}

// BlobReferencesResponse reports how many records point at a blob.
type BlobReferencesResponse struct {
	SHA256     string `json:"sha256"`
	BlobID     string `json:"blob_id"`
	References int    `json:"references"`
}

// BlobGCResponse reports one blob GC run.
type BlobGCResponse struct {
	DryRun           bool  `json:"dry_run"`
	RowCandidates    int   `json:"row_candidates"`
	RowsDeleted      int   `json:"rows_deleted"`
	ObjectCandidates int   `json:"object_candidates"`
	ObjectsDeleted   int   `json:"objects_deleted"`
	ForeignObjects   int   `json:"foreign_objects"`
	FailedCount      int   `json:"failed_count"`
	ReclaimedBytes   int64 `json:"reclaimed_bytes"`
}

// CredentialCreateRequest is the body of POST /v1/documents and POST /v1/titles.
type CredentialCreateRequest struct {
	PersonID    string `json:"person_id"`
	TypeID      string `json:"type_id"`
	Description string `json:"description,omitempty"`
	BlobSHA256  string `json:"blob_sha256,omitempty"`
}

// DecisionRequest is the body of POST /v1/{documents,titles}/{id}/decision.
type DecisionRequest struct {
	State         string `json:"state"`
	Justification string `json:"justification,omitempty"`
}

// CredentialDeleteResponse reports a deleted record and its blob release.
type CredentialDeleteResponse struct {
	Credential     models.Credential `json:"credential"`
	BlobReleased   bool              `json:"blob_released"`
	BlobReferences int               `json:"blob_references"`
}

// ContractCreateRequest is the body of POST /v1/contracts. Dates are YYYY-MM-DD;
// an empty end_date means open-ended.
type ContractCreateRequest struct {
	InstructorID    string `json:"instructor_id"`
	PersonID        string `json:"person_id"`
	SubjectID       string `json:"subject_id"`
	PeriodID        string `json:"period_id"`
	HoursLoad       int    `json:"hours_load"`
	HourlyRateCents int64  `json:"hourly_rate_cents"`
	StartDate       string `json:"start_date"`
	EndDate         string `json:"end_date,omitempty"`
}

// CatalogImportRequest is the body of POST /v1/catalog/import.
type CatalogImportRequest = models.Catalog

// CatalogImportResponse counts upserted rows per entity.
type CatalogImportResponse struct {
	Persons         int `json:"persons"`
	Instructors     int `json:"instructors"`
	Subjects        int `json:"subjects"`
	Periods         int `json:"periods"`
	CredentialTypes int `json:"credential_types"`
}

// AdminUser is a provisioned user without its password hash.
type AdminUser struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	PersonID  string    `json:"person_id,omitempty"`
	Disabled  bool      `json:"disabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type AdminUserCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
	PersonID string `json:"person_id,omitempty"`
}

type AdminUserSetDisabledRequest struct {
	Disabled bool `json:"disabled"`
}

type AdminUserDeleteResponse struct {
	Username string `json:"username"`
	Deleted  bool   `json:"deleted"`
}
