package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"credvault/internal/config"
	"credvault/internal/format"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   []byte
	Auth   string
}

// fakeAPI answers /health and replays canned responses keyed by "METHOD /path".
type fakeAPI struct {
	mu        sync.Mutex
	responses map[string]fakeResponse
	requests  []recordedRequest
}

type fakeResponse struct {
	status int
	body   any
}

func newFakeAPI(t *testing.T) (*fakeAPI, *config.Config) {
	t.Helper()
	t.Setenv("CREDVAULT_USER", "")
	t.Setenv("CREDVAULT_PASSWORD", "")
	t.Setenv("CREDVAULT_ADMIN_TOKEN", "cli-token")
	t.Setenv(autoStartEnvKey, "1")

	fake := &fakeAPI{responses: map[string]fakeResponse{}}
	ts := httptest.NewServer(fake)
	t.Cleanup(ts.Close)

	cfg := config.Default()
	cfg.APIURL = ts.URL
	cfg.Database.Path = "/definitely/not/used.db"
	return fake, &cfg
}

func (f *fakeAPI) on(method, path string, status int, body any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[method+" "+path] = fakeResponse{status: status, body: body}
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/health" {
		w.WriteHeader(http.StatusOK)
		return
	}
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Body:   body,
		Auth:   r.Header.Get("Authorization"),
	})
	resp, ok := f.responses[r.Method+" "+r.URL.Path]
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found","code":"not_found"}`))
		return
	}
	w.WriteHeader(resp.status)
	_ = json.NewEncoder(w).Encode(resp.body)
}

func (f *fakeAPI) last(t *testing.T) recordedRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		t.Fatal("expected at least one API request")
	}
	return f.requests[len(f.requests)-1]
}

// captureOutput redirects CLI output for the duration of the test.
func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevFormatter := stdout, outputFormatter
	stdout = &buf
	outputFormatter = format.JSONFormatter{}
	t.Cleanup(func() {
		stdout = prevOut
		outputFormatter = prevFormatter
	})
	return &buf
}
