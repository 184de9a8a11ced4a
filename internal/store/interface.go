package store

import (
	"context"
	"time"

	"credvault/internal/models"
)

// StoreInfo reports schema version and row counts.
type StoreInfo struct {
	Driver        string `json:"driver"`
	SchemaVersion int    `json:"schema_version"`
	Blobs         int    `json:"blobs"`
	Documents     int    `json:"documents"`
	Titles        int    `json:"titles"`
	Contracts     int    `json:"contracts"`
}

// BlobDeleteResult reports the outcome of a reference-gated blob delete.
type BlobDeleteResult struct {
	Blob       *models.Blob
	References int
	Deleted    bool
}

// CatalogImportResult counts upserted catalog rows per entity.
type CatalogImportResult struct {
	Persons         int `json:"persons"`
	Instructors     int `json:"instructors"`
	Subjects        int `json:"subjects"`
	Periods         int `json:"periods"`
	CredentialTypes int `json:"credential_types"`
}

// AuthUser is one provisioned principal.
type AuthUser struct {
	ID           string
	Username     string
	PasswordHash string
	Role         string
	PersonID     string
	Disabled     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// BlobMetadataStore persists blob descriptors and answers reference questions.
type BlobMetadataStore interface {
	// InsertBlob returns ErrDuplicateDigest when the digest is already recorded.
	InsertBlob(ctx context.Context, blob *models.Blob) error
	GetBlob(ctx context.Context, id string) (*models.Blob, error)
	GetBlobBySHA256(ctx context.Context, sha string) (*models.Blob, error)
	GetBlobByKey(ctx context.Context, key string) (*models.Blob, error)
	CountBlobReferences(ctx context.Context, blobID string) (int, error)
	// DeleteBlobIfUnreferenced counts references and removes the row in one transaction.
	DeleteBlobIfUnreferenced(ctx context.Context, blobID string) (BlobDeleteResult, error)
	ListUnreferencedBlobs(ctx context.Context, createdBefore time.Time, limit int) ([]models.Blob, error)
}

// CredentialStore persists documents and titles behind one kind-tagged surface.
type CredentialStore interface {
	CredentialIDExists(ctx context.Context, kind models.CredentialKind, id string) (bool, error)
	CreateCredential(ctx context.Context, credential *models.Credential) error
	GetCredential(ctx context.Context, kind models.CredentialKind, id string) (*models.Credential, error)
	ListCredentialsByPerson(ctx context.Context, kind models.CredentialKind, personID string) ([]models.Credential, error)
	// RecordDecision writes state, justification, decider and time in one statement.
	RecordDecision(ctx context.Context, kind models.CredentialKind, id string, decision models.Decision) (*models.Credential, error)
	DeleteCredential(ctx context.Context, kind models.CredentialKind, id string) (*models.Credential, error)
}

// ContractStore persists contracts and enforces per-instructor exclusivity.
type ContractStore interface {
	// CreateContract returns ErrContractOverlap when the interval collides.
	CreateContract(ctx context.Context, contract *models.Contract) error
	GetContract(ctx context.Context, publicID string) (*models.Contract, error)
	ListContractsByInstructor(ctx context.Context, instructorID string) ([]models.Contract, error)
	DeleteContract(ctx context.Context, publicID string) (bool, error)
}

// CatalogStore persists reference entities.
type CatalogStore interface {
	ImportCatalog(ctx context.Context, catalog models.Catalog) (CatalogImportResult, error)
	GetPerson(ctx context.Context, id string) (*models.Person, error)
	GetInstructor(ctx context.Context, id string) (*models.Instructor, error)
	GetSubject(ctx context.Context, id string) (*models.Subject, error)
	GetPeriod(ctx context.Context, id string) (*models.Period, error)
	GetCredentialType(ctx context.Context, id string) (*models.CredentialType, error)
	ListCredentialTypes(ctx context.Context, kind models.CredentialKind) ([]models.CredentialType, error)
}

// AuthStore persists provisioned users.
type AuthStore interface {
	CountEnabledUsers(ctx context.Context) (int, error)
	CreateUser(ctx context.Context, user *AuthUser) error
	GetUserByUsername(ctx context.Context, username string) (*AuthUser, error)
	GetUserByID(ctx context.Context, id string) (*AuthUser, error)
	ListUsers(ctx context.Context) ([]AuthUser, error)
	SetUserDisabled(ctx context.Context, username string, disabled bool, now time.Time) (*AuthUser, error)
	DeleteUser(ctx context.Context, username string) (bool, error)
}

// Repository is the full persistence surface the server runs on.
type Repository interface {
	BlobMetadataStore
	CredentialStore
	ContractStore
	CatalogStore
	AuthStore

	Driver() string
	Ping(ctx context.Context) error
	StoreInfo(ctx context.Context) (*StoreInfo, error)
	Close() error
}

var _ Repository = (*Store)(nil)
