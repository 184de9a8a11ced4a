package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"credvault/internal/api"
	"credvault/internal/blobstore"
	"credvault/internal/metrics"
	"credvault/internal/models"
	"credvault/internal/notify"
	"credvault/internal/store"
)

const testAdminToken = "test-admin-token"

type testEnv struct {
	srv      *Server
	repo     *store.Store
	objects  *blobstore.LocalCAS
	notifier *recordingNotifier
	h        http.Handler
}

type recordingNotifier struct {
	events []notify.Event
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, event notify.Event) error {
	n.events = append(n.events, event)
	return n.err
}

func (n *recordingNotifier) Close() error { return nil }

func testCatalog() models.Catalog {
	return models.Catalog{
		Persons: []models.Person{
			{ID: "p-ana", FullName: "Ana Quispe"},
			{ID: "p-luis", FullName: "Luis Mamani"},
		},
		Instructors: []models.Instructor{{ID: "in-ana", PersonID: "p-ana"}},
		Subjects:    []models.Subject{{ID: "sub-calc", Name: "Calculus I"}},
		Periods:     []models.Period{{ID: "per-2025-1", Name: "2025-I"}},
		CredentialTypes: []models.CredentialType{
			{ID: "ct-cv", Kind: models.KindDocument, Name: "Curriculum vitae"},
			{ID: "ct-msc", Kind: models.KindTitle, Name: "Master's degree"},
		},
	}
}

// newTestEnv starts a server over a temporary SQLite store and local blob
// root with the reference catalog loaded.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	repo, err := store.Open(filepath.Join(dir, "credvault.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	objects, err := blobstore.NewLocalCAS(filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatalf("open blob root: %v", err)
	}

	if _, err := repo.ImportCatalog(context.Background(), testCatalog()); err != nil {
		t.Fatalf("import catalog: %v", err)
	}

	notifier := &recordingNotifier{}
	srv := New("127.0.0.1:0", repo, objects, Options{
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:    metrics.New(),
		Notifier:   notifier,
		AdminToken: testAdminToken,
	})
	return &testEnv{srv: srv, repo: repo, objects: objects, notifier: notifier, h: srv.routes()}
}

type authFunc func(*http.Request)

func asAdmin(r *http.Request) {
	r.Header.Set("Authorization", "Bearer "+testAdminToken)
}

func asUser(username, password string) authFunc {
	return func(r *http.Request) {
		r.SetBasicAuth(username, password)
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, auth authFunc) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != nil {
		auth(req)
	}
	w := httptest.NewRecorder()
	e.h.ServeHTTP(w, req)
	return w
}

func (e *testEnv) upload(t *testing.T, content []byte, filename, mediaType string, auth authFunc) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if mediaType != "" {
		if err := mw.WriteField("media_type", mediaType); err != nil {
			t.Fatalf("write media_type: %v", err)
		}
	}
	part, err := mw.CreateFormFile("content", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write content: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/blobs", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if auth != nil {
		auth(req)
	}
	w := httptest.NewRecorder()
	e.h.ServeHTTP(w, req)
	return w
}

func (e *testEnv) createUser(t *testing.T, username, password, role, personID string) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/v1/admin/users", api.AdminUserCreateRequest{
		Username: username,
		Password: password,
		Role:     role,
		PersonID: personID,
	}, asAdmin)
	expectStatus(t, w, http.StatusCreated)
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected status %d, got %d (%s)", want, w.Code, w.Body.String())
	}
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func expectErrorCode(t *testing.T, w *httptest.ResponseRecorder, status, code int) api.ErrorResponse {
	t.Helper()
	expectStatus(t, w, status)
	resp := decodeBody[api.ErrorResponse](t, w)
	if resp.ErrorCode != code {
		t.Fatalf("expected error_code %d, got %d (%s)", code, resp.ErrorCode, w.Body.String())
	}
	return resp
}

func pdfBytes(size int, seed byte) []byte {
	content := bytes.Repeat([]byte{seed}, size)
	copy(content, "%PDF-1.7\n")
	return content
}

func shiftedClock(d time.Duration) func() time.Time {
	return func() time.Time { return time.Now().UTC().Add(d) }
}
