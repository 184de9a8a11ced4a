package models

import "time"

// Credential is a person's document or academic title submitted for HR review.
// Documents carry an IsCurrent flag; titles leave it nil.
type Credential struct {
	ID            string            `json:"id"`
	Kind          CredentialKind    `json:"kind"`
	PersonID      string            `json:"person_id"`
	TypeID        string            `json:"type_id"`
	TypeName      string            `json:"type_name,omitempty"`
	Description   string            `json:"description,omitempty"`
	BlobID        string            `json:"blob_id,omitempty"`
	BlobSHA256    string            `json:"blob_sha256,omitempty"`
	State         VerificationState `json:"state"`
	StateName     string            `json:"state_name"`
	Justification *string           `json:"justification"`
	DecidedBy     string            `json:"decided_by,omitempty"`
	DecidedAt     *time.Time        `json:"decided_at,omitempty"`
	IsCurrent     *bool             `json:"is_current,omitempty"`
	SubmittedBy   string            `json:"submitted_by,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Decision is one persisted review outcome.
type Decision struct {
	State         VerificationState
	Justification *string
	DecidedBy     string
	DecidedAt     time.Time
}
