package store

import (
	"testing"
	"time"

	"credvault/internal/models"
)

func TestCreateAndGetCredential(t *testing.T) {
	st, ctx := seededStore(t)
	blob := insertTestBlob(t, st, ctx, testDigest('1'))

	doc := &models.Credential{
		Kind:        models.KindDocument,
		PersonID:    "p-ana",
		TypeID:      "ct-cv",
		Description: "2025 CV",
		BlobID:      blob.ID,
		SubmittedBy: "au-1",
	}
	if err := st.CreateCredential(ctx, doc); err != nil {
		t.Fatalf("create: %v", err)
	}
	if doc.ID[:3] != "dc-" {
		t.Fatalf("expected dc- id, got %q", doc.ID)
	}

	got, err := st.GetCredential(ctx, models.KindDocument, doc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected document")
	}
	if got.State != models.StatePending || got.StateName != "Pending" {
		t.Fatalf("expected pending state, got %q/%q", got.State, got.StateName)
	}
	if got.Justification != nil || got.DecidedAt != nil {
		t.Fatalf("expected no decision fields, got %+v", got)
	}
	if got.TypeName != "Curriculum vitae" || got.BlobSHA256 != blob.SHA256 {
		t.Fatalf("expected joined type name and digest, got %+v", got)
	}
	if got.IsCurrent == nil || !*got.IsCurrent {
		t.Fatalf("expected current document, got %v", got.IsCurrent)
	}

	title := &models.Credential{Kind: models.KindTitle, PersonID: "p-ana", TypeID: "ct-msc"}
	if err := st.CreateCredential(ctx, title); err != nil {
		t.Fatalf("create title: %v", err)
	}
	if title.ID[:3] != "tt-" {
		t.Fatalf("expected tt- id, got %q", title.ID)
	}
	gotTitle, err := st.GetCredential(ctx, models.KindTitle, title.ID)
	if err != nil {
		t.Fatalf("get title: %v", err)
	}
	if gotTitle.IsCurrent != nil {
		t.Fatalf("expected titles to carry no current flag")
	}
	if gotTitle.BlobID != "" {
		t.Fatalf("expected empty blob id, got %q", gotTitle.BlobID)
	}

	// Kinds live in separate tables.
	cross, err := st.GetCredential(ctx, models.KindTitle, doc.ID)
	if err != nil {
		t.Fatalf("cross get: %v", err)
	}
	if cross != nil {
		t.Fatal("expected document id to be absent from titles")
	}
}

func TestCreateCredentialUnknownReferences(t *testing.T) {
	st, ctx := seededStore(t)
	doc := &models.Credential{Kind: models.KindDocument, PersonID: "p-missing", TypeID: "ct-cv"}
	err := st.CreateCredential(ctx, doc)
	if !isSQLiteForeignKey(err) {
		t.Fatalf("expected foreign key failure, got %v", err)
	}
}

func TestDocumentSupersession(t *testing.T) {
	st, ctx := seededStore(t)

	first := &models.Credential{Kind: models.KindDocument, PersonID: "p-ana", TypeID: "ct-cv"}
	if err := st.CreateCredential(ctx, first); err != nil {
		t.Fatalf("create first: %v", err)
	}
	second := &models.Credential{
		Kind:      models.KindDocument,
		PersonID:  "p-ana",
		TypeID:    "ct-cv",
		CreatedAt: first.CreatedAt.Add(time.Second),
	}
	if err := st.CreateCredential(ctx, second); err != nil {
		t.Fatalf("create second: %v", err)
	}
	other := &models.Credential{Kind: models.KindDocument, PersonID: "p-luis", TypeID: "ct-cv"}
	if err := st.CreateCredential(ctx, other); err != nil {
		t.Fatalf("create other person: %v", err)
	}

	docs, err := st.ListCredentialsByPerson(ctx, models.KindDocument, "p-ana")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	if docs[0].ID != second.ID || !*docs[0].IsCurrent {
		t.Fatalf("expected newest document to be current, got %+v", docs[0])
	}
	if docs[1].ID != first.ID || *docs[1].IsCurrent {
		t.Fatalf("expected older document superseded, got %+v", docs[1])
	}

	luis, err := st.GetCredential(ctx, models.KindDocument, other.ID)
	if err != nil {
		t.Fatalf("get other: %v", err)
	}
	if !*luis.IsCurrent {
		t.Fatal("expected other person's document to stay current")
	}
}

func TestDeleteCurrentDocumentPromotesPrevious(t *testing.T) {
	st, ctx := seededStore(t)

	base := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	docs := make([]*models.Credential, 3)
	for i := range docs {
		docs[i] = &models.Credential{
			Kind:      models.KindDocument,
			PersonID:  "p-ana",
			TypeID:    "ct-cv",
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := st.CreateCredential(ctx, docs[i]); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	isCurrent := func(id string) bool {
		t.Helper()
		got, err := st.GetCredential(ctx, models.KindDocument, id)
		if err != nil || got == nil {
			t.Fatalf("get %s: %v", id, err)
		}
		return got.IsCurrent != nil && *got.IsCurrent
	}

	if _, err := st.DeleteCredential(ctx, models.KindDocument, docs[0].ID); err != nil {
		t.Fatalf("delete superseded: %v", err)
	}
	if isCurrent(docs[1].ID) || !isCurrent(docs[2].ID) {
		t.Fatal("deleting a superseded document must not change which one is current")
	}

	if _, err := st.DeleteCredential(ctx, models.KindDocument, docs[2].ID); err != nil {
		t.Fatalf("delete current: %v", err)
	}
	if !isCurrent(docs[1].ID) {
		t.Fatal("expected the newest remaining document to become current")
	}

	if _, err := st.DeleteCredential(ctx, models.KindDocument, docs[1].ID); err != nil {
		t.Fatalf("delete last: %v", err)
	}
	remaining, err := st.ListCredentialsByPerson(ctx, models.KindDocument, "p-ana")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected no documents left, got %d", len(remaining))
	}
}

func TestRecordDecision(t *testing.T) {
	st, ctx := seededStore(t)
	doc := &models.Credential{Kind: models.KindDocument, PersonID: "p-ana", TypeID: "ct-cv"}
	if err := st.CreateCredential(ctx, doc); err != nil {
		t.Fatalf("create: %v", err)
	}

	reason := "Illegible scan"
	decidedAt := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	updated, err := st.RecordDecision(ctx, models.KindDocument, doc.ID, models.Decision{
		State:         models.StateRejected,
		Justification: &reason,
		DecidedBy:     "au-hr",
		DecidedAt:     decidedAt,
	})
	if err != nil {
		t.Fatalf("record decision: %v", err)
	}
	if updated.State != models.StateRejected || updated.StateName != "Rejected" {
		t.Fatalf("unexpected state %q", updated.State)
	}
	if updated.Justification == nil || *updated.Justification != reason {
		t.Fatalf("unexpected justification %v", updated.Justification)
	}
	if updated.DecidedBy != "au-hr" || updated.DecidedAt == nil || !updated.DecidedAt.Equal(decidedAt) {
		t.Fatalf("unexpected decider fields: %+v", updated)
	}

	// Approval clears the previous justification.
	approved, err := st.RecordDecision(ctx, models.KindDocument, doc.ID, models.Decision{
		State:     models.StateApproved,
		DecidedBy: "au-hr",
		DecidedAt: decidedAt.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Justification != nil {
		t.Fatalf("expected justification cleared, got %q", *approved.Justification)
	}

	missing, err := st.RecordDecision(ctx, models.KindDocument, "dc-none00", models.Decision{State: models.StateApproved})
	if err != nil {
		t.Fatalf("decision on missing: %v", err)
	}
	if missing != nil {
		t.Fatal("expected nil for missing credential")
	}
}

func TestDeleteCredential(t *testing.T) {
	st, ctx := seededStore(t)
	title := &models.Credential{Kind: models.KindTitle, PersonID: "p-luis", TypeID: "ct-msc"}
	if err := st.CreateCredential(ctx, title); err != nil {
		t.Fatalf("create: %v", err)
	}

	deleted, err := st.DeleteCredential(ctx, models.KindTitle, title.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted == nil || deleted.ID != title.ID {
		t.Fatalf("expected deleted row returned, got %+v", deleted)
	}

	again, err := st.DeleteCredential(ctx, models.KindTitle, title.ID)
	if err != nil {
		t.Fatalf("delete again: %v", err)
	}
	if again != nil {
		t.Fatal("expected nil on second delete")
	}
}

func TestUnknownCredentialKind(t *testing.T) {
	st, ctx := seededStore(t)
	if _, err := st.GetCredential(ctx, models.CredentialKind("badge"), "x"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
