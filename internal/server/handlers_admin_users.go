package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"credvault/internal/api"
	"credvault/internal/auth"
	"credvault/internal/store"
)

func (s *Server) requireUserManage(w http.ResponseWriter, r *http.Request) bool {
	if s.authService == nil {
		s.writeErrorReq(w, r, http.StatusNotImplemented, apiError{
			status:  http.StatusNotImplemented,
			code:    "not_implemented",
			errCode: ErrCodeNotImplemented,
			err:     fmt.Errorf("user provisioning is not supported"),
		})
		return false
	}
	if !principalFromContext(r.Context()).Can(auth.CapUserManage) {
		s.writeServiceError(w, r, forbidden(fmt.Errorf("not allowed to manage users")))
		return false
	}
	return true
}

func (s *Server) handleAdminCreateUser(w http.ResponseWriter, r *http.Request) {
	if !s.requireUserManage(w, r) {
		return
	}

	var req api.AdminUserCreateRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}

	created, err := s.authService.CreateUser(r.Context(), CreateUserInput{
		Username: req.Username,
		Password: req.Password,
		Role:     req.Role,
		PersonID: req.PersonID,
	}, time.Now().UTC())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, toAPIAdminUser(*created))
}

func (s *Server) handleAdminListUsers(w http.ResponseWriter, r *http.Request) {
	if !s.requireUserManage(w, r) {
		return
	}

	users, err := s.authService.ListUsers(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := make([]api.AdminUser, 0, len(users))
	for _, user := range users {
		resp = append(resp, toAPIAdminUser(user))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAdminSetUserDisabled(w http.ResponseWriter, r *http.Request) {
	if !s.requireUserManage(w, r) {
		return
	}

	username, err := pathUsername(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	var req api.AdminUserSetDisabledRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}

	updated, err := s.authService.SetUserDisabled(r.Context(), username, req.Disabled, time.Now().UTC())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, toAPIAdminUser(*updated))
}

func (s *Server) handleAdminDeleteUser(w http.ResponseWriter, r *http.Request) {
	if !s.requireUserManage(w, r) {
		return
	}

	username, err := pathUsername(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	deleted, err := s.authService.DeleteUser(r.Context(), username)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, api.AdminUserDeleteResponse{Username: deleted, Deleted: true})
}

func pathUsername(r *http.Request) (string, error) {
	username := strings.TrimSpace(r.PathValue("username"))
	if username == "" {
		return "", badRequestCode(fmt.Errorf("username is required"), ErrCodeMissingRequired)
	}
	return username, nil
}

func toAPIAdminUser(user store.AuthUser) api.AdminUser {
	return api.AdminUser{
		ID:        user.ID,
		Username:  user.Username,
		Role:      user.Role,
		PersonID:  user.PersonID,
		Disabled:  user.Disabled,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}
