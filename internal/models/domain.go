package models

import (
	"errors"
	"fmt"
	"strings"
)

// CredentialKind distinguishes the two credential record variants.
type CredentialKind string

const (
	KindDocument CredentialKind = "document"
	KindTitle    CredentialKind = "title"
)

// VerificationState is the review lifecycle state of a credential record.
type VerificationState string

const (
	StatePending  VerificationState = "pending"
	StateApproved VerificationState = "approved"
	StateRejected VerificationState = "rejected"
	StateObserved VerificationState = "observed"
)

var (
	ErrInvalidState          = errors.New("invalid verification state")
	ErrPendingNotDecision    = errors.New("pending is not a valid decision target")
	ErrJustificationRequired = errors.New("justification is required for rejected or observed decisions")
)

var stateDisplayNames = map[VerificationState]string{
	StatePending:  "Pending",
	StateApproved: "Approved",
	StateRejected: "Rejected",
	StateObserved: "Observed",
}

var decisionStates = map[VerificationState]struct{}{
	StateApproved: {},
	StateRejected: {},
	StateObserved: {},
}

func ParseCredentialKind(raw string) (CredentialKind, error) {
	value := CredentialKind(strings.ToLower(strings.TrimSpace(raw)))
	switch value {
	case KindDocument, KindTitle:
		return value, nil
	case "":
		return "", fmt.Errorf("credential kind is required")
	default:
		return "", fmt.Errorf("invalid credential kind: %s", value)
	}
}

// Plural returns the collection name used in URLs and table names.
func (k CredentialKind) Plural() string {
	return string(k) + "s"
}

func ParseVerificationState(raw string) (VerificationState, error) {
	value := VerificationState(strings.ToLower(strings.TrimSpace(raw)))
	if value == "" {
		return "", fmt.Errorf("%w: state is required", ErrInvalidState)
	}
	if _, ok := stateDisplayNames[value]; !ok {
		return "", fmt.Errorf("%w: %s", ErrInvalidState, value)
	}
	return value, nil
}

// DisplayName returns the human-readable state label.
func (s VerificationState) DisplayName() string {
	if name, ok := stateDisplayNames[s]; ok {
		return name
	}
	return string(s)
}

// IsDecision reports whether s can be the target of a review decision.
func (s VerificationState) IsDecision() bool {
	_, ok := decisionStates[s]
	return ok
}

// RequiresJustification reports whether a decision to s must carry a reason.
func (s VerificationState) RequiresJustification() bool {
	return s == StateRejected || s == StateObserved
}

// NormalizeDecision validates a decision target and returns the justification to persist.
// The returned justification is nil for approvals.
func NormalizeDecision(rawState, justification string) (VerificationState, *string, error) {
	state, err := ParseVerificationState(rawState)
	if err != nil {
		return "", nil, err
	}
	if !state.IsDecision() {
		return "", nil, ErrPendingNotDecision
	}
	if !state.RequiresJustification() {
		return state, nil, nil
	}
	trimmed := strings.TrimSpace(justification)
	if trimmed == "" {
		return "", nil, ErrJustificationRequired
	}
	return state, &trimmed, nil
}
