package server

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"testing"
)

func TestRequestLogLevel(t *testing.T) {
	tests := []struct {
		status int
		want   slog.Level
	}{
		{http.StatusOK, slog.LevelDebug},
		{http.StatusCreated, slog.LevelDebug},
		{http.StatusConflict, slog.LevelDebug},
		{http.StatusUnauthorized, slog.LevelWarn},
		{http.StatusForbidden, slog.LevelWarn},
		{http.StatusTooManyRequests, slog.LevelWarn},
		{http.StatusInternalServerError, slog.LevelError},
		{http.StatusServiceUnavailable, slog.LevelError},
	}
	for _, tt := range tests {
		if got := requestLogLevel(tt.status); got != tt.want {
			t.Fatalf("status %d: expected %v, got %v", tt.status, tt.want, got)
		}
	}
}

func captureRequestLogs(t *testing.T, env *testEnv) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	env.srv.logger = slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	env.h = env.srv.routes()
	return &buf
}

func requestLogLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	for _, raw := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if raw == "" {
			continue
		}
		var line map[string]any
		if err := json.Unmarshal([]byte(raw), &line); err != nil {
			t.Fatalf("decode log line %q: %v", raw, err)
		}
		if line["msg"] == "request complete" || line["msg"] == "request denied" {
			lines = append(lines, line)
		}
	}
	return lines
}

func TestRequestLoggingRecordsPrincipalAndRoute(t *testing.T) {
	env := newTestEnv(t)
	buf := captureRequestLogs(t, env)

	w := env.do(t, http.MethodGet, "/v1/credential-types", nil, asAdmin)
	if w.Code != http.StatusOK {
		t.Fatalf("list types: %d %s", w.Code, w.Body.String())
	}

	lines := requestLogLines(t, buf)
	if len(lines) != 1 {
		t.Fatalf("expected one request log line, got %d: %s", len(lines), buf.String())
	}
	line := lines[0]
	if line["level"] != "DEBUG" || line["msg"] != "request complete" {
		t.Fatalf("unexpected level/msg: %v", line)
	}
	if line["route"] != "GET /v1/credential-types" {
		t.Fatalf("expected route pattern, got %v", line["route"])
	}
	if n, _ := line["bytes"].(float64); n <= 0 {
		t.Fatalf("expected response bytes, got %v", line["bytes"])
	}
	principal, ok := line["principal"].(map[string]any)
	if !ok {
		t.Fatalf("expected principal group, got %v", line)
	}
	if principal["auth"] != authTypeBearer || principal["user"] != "system" || principal["role"] != "admin" {
		t.Fatalf("unexpected principal: %v", principal)
	}
}

func TestRequestLoggingWarnsOnRejectedToken(t *testing.T) {
	env := newTestEnv(t)
	buf := captureRequestLogs(t, env)

	w := env.do(t, http.MethodGet, "/v1/credential-types", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer wrong-token")
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	lines := requestLogLines(t, buf)
	if len(lines) != 1 {
		t.Fatalf("expected one request log line, got %d: %s", len(lines), buf.String())
	}
	line := lines[0]
	if line["level"] != "WARN" || line["msg"] != "request denied" {
		t.Fatalf("expected warn-level denial, got %v", line)
	}
	if _, ok := line["principal"]; ok {
		t.Fatalf("rejected request must not carry a principal: %v", line)
	}
}

func TestRequestLoggingSkipsHealth(t *testing.T) {
	env := newTestEnv(t)
	buf := captureRequestLogs(t, env)

	env.do(t, http.MethodGet, "/health", nil, nil)
	if lines := requestLogLines(t, buf); len(lines) != 0 {
		t.Fatalf("expected no request log for /health, got %v", lines)
	}
}
