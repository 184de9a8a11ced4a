package store

import (
	"errors"
	"testing"
	"time"

	"credvault/internal/models"
)

func TestInsertAndGetBlob(t *testing.T) {
	st, ctx := seededStore(t)
	blob := insertTestBlob(t, st, ctx, testDigest('a'))

	if blob.ID == "" || blob.ID[:3] != "bl-" {
		t.Fatalf("expected generated bl- id, got %q", blob.ID)
	}

	byID, err := st.GetBlob(ctx, blob.ID)
	if err != nil {
		t.Fatalf("get blob: %v", err)
	}
	if byID == nil || byID.SHA256 != blob.SHA256 {
		t.Fatalf("unexpected blob by id: %+v", byID)
	}
	if byID.MediaType != "application/pdf" || byID.Filename != "cv.pdf" {
		t.Fatalf("unexpected blob metadata: %+v", byID)
	}

	bySHA, err := st.GetBlobBySHA256(ctx, "  "+testDigest('A')+" ")
	if err != nil {
		t.Fatalf("get blob by sha: %v", err)
	}
	if bySHA == nil || bySHA.ID != blob.ID {
		t.Fatalf("expected digest lookup to normalize case, got %+v", bySHA)
	}

	byKey, err := st.GetBlobByKey(ctx, blob.BlobKey)
	if err != nil {
		t.Fatalf("get blob by key: %v", err)
	}
	if byKey == nil || byKey.ID != blob.ID {
		t.Fatalf("unexpected blob by key: %+v", byKey)
	}

	missing, err := st.GetBlob(ctx, "bl-nope00")
	if err != nil {
		t.Fatalf("get missing blob: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing blob, got %+v", missing)
	}
}

func TestInsertBlobDuplicateDigest(t *testing.T) {
	st, ctx := seededStore(t)
	insertTestBlob(t, st, ctx, testDigest('b'))

	dup := &models.Blob{
		SHA256:    testDigest('b'),
		SizeBytes: 12,
		MediaType: "application/pdf",
		BlobKey:   "sha256/bb/bb/other",
	}
	err := st.InsertBlob(ctx, dup)
	if !errors.Is(err, ErrDuplicateDigest) {
		t.Fatalf("expected ErrDuplicateDigest, got %v", err)
	}
}

func TestInsertBlobValidation(t *testing.T) {
	st, ctx := seededStore(t)
	cases := map[string]*models.Blob{
		"bad digest":   {SHA256: "abc", MediaType: "application/pdf", BlobKey: "k"},
		"missing key":  {SHA256: testDigest('c'), MediaType: "application/pdf"},
		"missing type": {SHA256: testDigest('c'), BlobKey: "k"},
		"negative":     {SHA256: testDigest('c'), MediaType: "application/pdf", BlobKey: "k", SizeBytes: -1},
	}
	for name, blob := range cases {
		t.Run(name, func(t *testing.T) {
			if err := st.InsertBlob(ctx, blob); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestDeleteBlobIfUnreferenced(t *testing.T) {
	st, ctx := seededStore(t)
	blob := insertTestBlob(t, st, ctx, testDigest('d'))

	doc := &models.Credential{Kind: models.KindDocument, PersonID: "p-ana", TypeID: "ct-cv", BlobID: blob.ID}
	if err := st.CreateCredential(ctx, doc); err != nil {
		t.Fatalf("create document: %v", err)
	}
	title := &models.Credential{Kind: models.KindTitle, PersonID: "p-ana", TypeID: "ct-msc", BlobID: blob.ID}
	if err := st.CreateCredential(ctx, title); err != nil {
		t.Fatalf("create title: %v", err)
	}

	refs, err := st.CountBlobReferences(ctx, blob.ID)
	if err != nil {
		t.Fatalf("count refs: %v", err)
	}
	if refs != 2 {
		t.Fatalf("expected 2 references, got %d", refs)
	}

	result, err := st.DeleteBlobIfUnreferenced(ctx, blob.ID)
	if err != nil {
		t.Fatalf("delete referenced blob: %v", err)
	}
	if result.Deleted || result.References != 2 {
		t.Fatalf("expected blocked delete with 2 refs, got %+v", result)
	}

	if _, err := st.DeleteCredential(ctx, models.KindDocument, doc.ID); err != nil {
		t.Fatalf("delete document: %v", err)
	}
	if _, err := st.DeleteCredential(ctx, models.KindTitle, title.ID); err != nil {
		t.Fatalf("delete title: %v", err)
	}

	result, err = st.DeleteBlobIfUnreferenced(ctx, blob.ID)
	if err != nil {
		t.Fatalf("delete unreferenced blob: %v", err)
	}
	if !result.Deleted || result.References != 0 || result.Blob == nil {
		t.Fatalf("expected deleted blob, got %+v", result)
	}

	result, err = st.DeleteBlobIfUnreferenced(ctx, blob.ID)
	if err != nil {
		t.Fatalf("delete missing blob: %v", err)
	}
	if result.Blob != nil || result.Deleted {
		t.Fatalf("expected empty result for missing blob, got %+v", result)
	}
}

func TestListUnreferencedBlobs(t *testing.T) {
	st, ctx := seededStore(t)
	referenced := insertTestBlob(t, st, ctx, testDigest('e'))
	orphan := insertTestBlob(t, st, ctx, testDigest('f'))

	doc := &models.Credential{Kind: models.KindDocument, PersonID: "p-ana", TypeID: "ct-cv", BlobID: referenced.ID}
	if err := st.CreateCredential(ctx, doc); err != nil {
		t.Fatalf("create document: %v", err)
	}

	blobs, err := st.ListUnreferencedBlobs(ctx, time.Now().Add(time.Minute), 0)
	if err != nil {
		t.Fatalf("list unreferenced: %v", err)
	}
	if len(blobs) != 1 || blobs[0].ID != orphan.ID {
		t.Fatalf("expected only orphan blob, got %+v", blobs)
	}

	blobs, err = st.ListUnreferencedBlobs(ctx, orphan.CreatedAt.Add(-time.Hour), 0)
	if err != nil {
		t.Fatalf("list unreferenced with early cutoff: %v", err)
	}
	if len(blobs) != 0 {
		t.Fatalf("expected young blobs to be skipped, got %d", len(blobs))
	}
}

func TestCredentialBlobForeignKeyRestricts(t *testing.T) {
	st, ctx := seededStore(t)
	blob := insertTestBlob(t, st, ctx, testDigest('9'))
	doc := &models.Credential{Kind: models.KindDocument, PersonID: "p-ana", TypeID: "ct-cv", BlobID: blob.ID}
	if err := st.CreateCredential(ctx, doc); err != nil {
		t.Fatalf("create document: %v", err)
	}

	_, err := st.db.ExecContext(ctx, `DELETE FROM blobs WHERE id = ?`, blob.ID)
	if !isSQLiteForeignKey(err) {
		t.Fatalf("expected foreign key failure, got %v", err)
	}
}
