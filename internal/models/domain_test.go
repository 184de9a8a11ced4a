package models

import (
	"errors"
	"testing"
)

func TestNormalizeDecision(t *testing.T) {
	tests := []struct {
		name              string
		state             string
		justification     string
		wantState         VerificationState
		wantJustification string
		wantErr           error
	}{
		{name: "approve clears justification", state: "approved", justification: "looks fine", wantState: StateApproved},
		{name: "approve case insensitive", state: " APPROVED ", wantState: StateApproved},
		{name: "reject trims", state: "rejected", justification: "  expired  ", wantState: StateRejected, wantJustification: "expired"},
		{name: "observe", state: "observed", justification: "missing page 2", wantState: StateObserved, wantJustification: "missing page 2"},
		{name: "reject blank", state: "rejected", justification: "   ", wantErr: ErrJustificationRequired},
		{name: "observe empty", state: "observed", wantErr: ErrJustificationRequired},
		{name: "pending target", state: "pending", justification: "x", wantErr: ErrPendingNotDecision},
		{name: "unknown state", state: "archived", wantErr: ErrInvalidState},
		{name: "empty state", state: "", wantErr: ErrInvalidState},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			state, justification, err := NormalizeDecision(tc.state, tc.justification)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if state != tc.wantState {
				t.Fatalf("expected state %q, got %q", tc.wantState, state)
			}
			if tc.wantJustification == "" {
				if justification != nil {
					t.Fatalf("expected nil justification, got %q", *justification)
				}
				return
			}
			if justification == nil || *justification != tc.wantJustification {
				t.Fatalf("expected justification %q, got %v", tc.wantJustification, justification)
			}
		})
	}
}

func TestVerificationStateDisplayName(t *testing.T) {
	if StatePending.DisplayName() != "Pending" {
		t.Fatalf("unexpected display name %q", StatePending.DisplayName())
	}
	if StatePending.IsDecision() {
		t.Fatal("pending must not be a decision target")
	}
	if !StateObserved.RequiresJustification() || StateApproved.RequiresJustification() {
		t.Fatal("unexpected justification requirement")
	}
}

func TestParseCredentialKind(t *testing.T) {
	kind, err := ParseCredentialKind(" Title ")
	if err != nil || kind != KindTitle {
		t.Fatalf("expected title, got %q (%v)", kind, err)
	}
	if kind.Plural() != "titles" {
		t.Fatalf("unexpected plural %q", kind.Plural())
	}
	if _, err := ParseCredentialKind("diploma"); err == nil {
		t.Fatal("expected invalid kind error")
	}
}

func TestIsValidDigest(t *testing.T) {
	valid := "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"
	if !IsValidDigest(valid) {
		t.Fatal("expected valid digest")
	}
	if IsValidDigest(valid[:63]) {
		t.Fatal("expected short digest to be invalid")
	}
	if IsValidDigest("9F86D081884C7D659A2FEAA0C55AD015A3BF4F1B2B0B822CD15D6C15B0F00A08") {
		t.Fatal("expected uppercase digest to be invalid before normalization")
	}
	if NormalizeDigest(" ABC ") != "abc" {
		t.Fatal("expected normalized digest")
	}
}
