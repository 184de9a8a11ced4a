package store

import (
	"testing"

	"credvault/internal/models"
)

func TestImportCatalogUpserts(t *testing.T) {
	st, ctx := seededStore(t)

	updated := models.Catalog{
		Persons:         []models.Person{{ID: "p-ana", FullName: "Ana M. Quispe"}},
		CredentialTypes: []models.CredentialType{{ID: "ct-dni", Kind: models.KindDocument, Name: "National ID"}},
	}
	result, err := st.ImportCatalog(ctx, updated)
	if err != nil {
		t.Fatalf("re-import: %v", err)
	}
	if result.Persons != 1 || result.CredentialTypes != 1 || result.Instructors != 0 {
		t.Fatalf("unexpected counts: %+v", result)
	}

	person, err := st.GetPerson(ctx, "p-ana")
	if err != nil {
		t.Fatalf("get person: %v", err)
	}
	if person.FullName != "Ana M. Quispe" {
		t.Fatalf("expected updated name, got %q", person.FullName)
	}
	if person.NationalID != "" {
		t.Fatalf("expected national id cleared, got %q", person.NationalID)
	}

	docTypes, err := st.ListCredentialTypes(ctx, models.KindDocument)
	if err != nil {
		t.Fatalf("list types: %v", err)
	}
	if len(docTypes) != 2 {
		t.Fatalf("expected 2 document types, got %d", len(docTypes))
	}
	all, err := st.ListCredentialTypes(ctx, "")
	if err != nil {
		t.Fatalf("list all types: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 types, got %d", len(all))
	}
}

func TestImportCatalogRollsBackOnError(t *testing.T) {
	st := testStore(t)
	ctx := t.Context()

	bad := models.Catalog{
		Persons:     []models.Person{{ID: "p-x", FullName: "X"}},
		Instructors: []models.Instructor{{ID: "in-x", PersonID: "p-missing"}},
	}
	if _, err := st.ImportCatalog(ctx, bad); err == nil {
		t.Fatal("expected foreign key failure")
	}
	person, err := st.GetPerson(ctx, "p-x")
	if err != nil {
		t.Fatalf("get person: %v", err)
	}
	if person != nil {
		t.Fatal("expected person insert rolled back")
	}
}

func TestImportCatalogRejectsUnknownKind(t *testing.T) {
	st := testStore(t)
	bad := models.Catalog{CredentialTypes: []models.CredentialType{{ID: "ct-x", Kind: "badge", Name: "X"}}}
	if _, err := st.ImportCatalog(t.Context(), bad); err == nil {
		t.Fatal("expected kind validation error")
	}
}

func TestCatalogLookups(t *testing.T) {
	st, ctx := seededStore(t)

	instructor, err := st.GetInstructor(ctx, "in-ana")
	if err != nil || instructor == nil || instructor.PersonID != "p-ana" {
		t.Fatalf("get instructor: %+v err=%v", instructor, err)
	}
	if instructor.RegisteredAt.IsZero() {
		t.Fatal("expected registration time")
	}
	subject, err := st.GetSubject(ctx, "sub-calc")
	if err != nil || subject == nil || subject.Name != "Calculus I" {
		t.Fatalf("get subject: %+v err=%v", subject, err)
	}
	period, err := st.GetPeriod(ctx, "per-2025-1")
	if err != nil || period == nil {
		t.Fatalf("get period: %+v err=%v", period, err)
	}
	ct, err := st.GetCredentialType(ctx, "ct-msc")
	if err != nil || ct == nil || ct.Kind != models.KindTitle {
		t.Fatalf("get credential type: %+v err=%v", ct, err)
	}

	for name, lookup := range map[string]func() (bool, error){
		"person": func() (bool, error) { v, err := st.GetPerson(ctx, "nope"); return v == nil, err },
		"instructor": func() (bool, error) {
			v, err := st.GetInstructor(ctx, "nope")
			return v == nil, err
		},
		"subject": func() (bool, error) { v, err := st.GetSubject(ctx, "nope"); return v == nil, err },
		"period":  func() (bool, error) { v, err := st.GetPeriod(ctx, "nope"); return v == nil, err },
	} {
		isNil, err := lookup()
		if err != nil {
			t.Fatalf("%s lookup: %v", name, err)
		}
		if !isNil {
			t.Fatalf("expected nil %s", name)
		}
	}
}
