package main

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"credvault/internal/api"
)

func TestAdminUserListUsesAPIClient(t *testing.T) {
	fake, cfg := newFakeAPI(t)
	out := captureOutput(t)
	fake.on(http.MethodGet, "/v1/admin/users", http.StatusOK, []api.AdminUser{
		{ID: "usr-1", Username: "reviewer", Role: "hr"},
		{ID: "usr-2", Username: "ana", Role: "subject", PersonID: "p-ana", Disabled: true},
	})

	jsonOutput := false
	cmd := newAdminUserListCmd(cfg, &jsonOutput)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("execute admin user list: %v", err)
	}
	if req := fake.last(t); req.Method != http.MethodGet || req.Path != "/v1/admin/users" {
		t.Fatalf("unexpected request %s %s", req.Method, req.Path)
	}
	if !strings.Contains(out.String(), "ana\tsubject\tp-ana\tdisabled\tusr-2") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestAdminUserAddRejectsUnknownRole(t *testing.T) {
	_, cfg := newFakeAPI(t)
	captureOutput(t)

	jsonOutput := false
	cmd := newAdminUserAddCmd(cfg, &jsonOutput)
	cmd.SetArgs([]string{"someone", "--password-stdin", "--role", "root"})
	if err := cmd.ExecuteContext(context.Background()); err == nil {
		t.Fatal("expected unknown role error")
	}
}
