package server

import (
	"net/http"
	"testing"

	"credvault/internal/api"
)

func TestAdminUserHandlersLifecycle(t *testing.T) {
	env := newTestEnv(t)

	create := api.AdminUserCreateRequest{Username: "Reviewer", Password: "password-123", Role: "hr"}
	w := env.do(t, http.MethodPost, "/v1/admin/users", create, asAdmin)
	expectStatus(t, w, http.StatusCreated)
	created := decodeBody[api.AdminUser](t, w)
	if created.Username != "reviewer" {
		t.Fatalf("expected normalized username reviewer, got %q", created.Username)
	}
	if created.Disabled || created.Role != "hr" {
		t.Fatalf("unexpected created user: %+v", created)
	}

	w = env.do(t, http.MethodPost, "/v1/admin/users", create, asAdmin)
	expectErrorCode(t, w, http.StatusConflict, ErrCodeConflict)

	w = env.do(t, http.MethodGet, "/v1/admin/users", nil, asAdmin)
	expectStatus(t, w, http.StatusOK)
	users := decodeBody[[]api.AdminUser](t, w)
	if len(users) != 1 || users[0].Username != "reviewer" {
		t.Fatalf("unexpected users: %+v", users)
	}

	reviewer := asUser("reviewer", "password-123")
	expectStatus(t, env.do(t, http.MethodGet, "/v1/auth/me", nil, reviewer), http.StatusOK)
	expectErrorCode(t, env.do(t, http.MethodGet, "/v1/admin/users", nil, reviewer), http.StatusForbidden, ErrCodeForbidden)

	w = env.do(t, http.MethodPatch, "/v1/admin/users/reviewer", api.AdminUserSetDisabledRequest{Disabled: true}, asAdmin)
	expectStatus(t, w, http.StatusOK)
	disabled := decodeBody[api.AdminUser](t, w)
	if !disabled.Disabled {
		t.Fatal("expected user to be disabled")
	}
	expectErrorCode(t, env.do(t, http.MethodGet, "/v1/auth/me", nil, reviewer), http.StatusUnauthorized, ErrCodeUnauthorized)

	w = env.do(t, http.MethodDelete, "/v1/admin/users/reviewer", nil, asAdmin)
	expectStatus(t, w, http.StatusOK)
	deleted := decodeBody[api.AdminUserDeleteResponse](t, w)
	if !deleted.Deleted || deleted.Username != "reviewer" {
		t.Fatalf("unexpected delete response: %+v", deleted)
	}

	expectErrorCode(t, env.do(t, http.MethodDelete, "/v1/admin/users/reviewer", nil, asAdmin), http.StatusNotFound, ErrCodeUserNotFound)
	expectErrorCode(t, env.do(t, http.MethodPatch, "/v1/admin/users/ghost", api.AdminUserSetDisabledRequest{Disabled: true}, asAdmin), http.StatusNotFound, ErrCodeUserNotFound)
}

func TestAdminCreateUserValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		req  api.AdminUserCreateRequest
		code int
	}{
		{"unknown role", api.AdminUserCreateRequest{Username: "a", Password: "password-123", Role: "root"}, ErrCodeInvalidArgument},
		{"short password", api.AdminUserCreateRequest{Username: "a", Password: "x", Role: "hr"}, ErrCodeInvalidArgument},
		{"subject without person", api.AdminUserCreateRequest{Username: "a", Password: "password-123", Role: "subject"}, ErrCodeMissingRequired},
		{"subject with unknown person", api.AdminUserCreateRequest{Username: "a", Password: "password-123", Role: "subject", PersonID: "p-ghost"}, ErrCodeInvalidReference},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/v1/admin/users", tt.req, asAdmin)
			expectErrorCode(t, w, http.StatusBadRequest, tt.code)
		})
	}
}
