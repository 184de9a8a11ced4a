package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	internalauth "credvault/internal/auth"
	"credvault/internal/store"
)

var errInvalidCredentials = errors.New("invalid credentials")

// AuthService resolves request identities and provisions users.
type AuthService struct {
	store   store.AuthStore
	catalog store.CatalogStore
}

// CreateUserInput describes one user to provision.
type CreateUserInput struct {
	Username string
	Password string
	Role     string
	PersonID string
}

func NewAuthService(authStore store.AuthStore, catalog store.CatalogStore) *AuthService {
	if authStore == nil {
		return nil
	}
	return &AuthService{store: authStore, catalog: catalog}
}

// AuthRequired reports whether requests must carry credentials. Auth is off
// only while no admin token is configured and no enabled user exists.
func (a *AuthService) AuthRequired(ctx context.Context, adminTokenConfigured bool) (bool, error) {
	if adminTokenConfigured {
		return true, nil
	}
	if a == nil || a.store == nil {
		return false, nil
	}
	count, err := a.store.CountEnabledUsers(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Authenticate verifies Basic credentials and returns the user's principal.
func (a *AuthService) Authenticate(ctx context.Context, username, password string) (internalauth.Principal, error) {
	if a == nil || a.store == nil {
		return internalauth.Principal{}, fmt.Errorf("auth store is required")
	}

	normalized, err := internalauth.NormalizeUsername(username)
	if err != nil {
		internalauth.BurnPasswordCompare(password)
		return internalauth.Principal{}, errInvalidCredentials
	}

	user, err := a.store.GetUserByUsername(ctx, normalized)
	if err != nil {
		return internalauth.Principal{}, err
	}
	if user == nil {
		internalauth.BurnPasswordCompare(password)
		return internalauth.Principal{}, errInvalidCredentials
	}
	if user.Disabled || !internalauth.VerifyPassword(user.PasswordHash, password) {
		return internalauth.Principal{}, errInvalidCredentials
	}
	return principalForUser(*user), nil
}

func (a *AuthService) CreateUser(ctx context.Context, in CreateUserInput, now time.Time) (*store.AuthUser, error) {
	if a == nil || a.store == nil {
		return nil, fmt.Errorf("auth store is required")
	}

	username, err := internalauth.NormalizeUsername(in.Username)
	if err != nil {
		return nil, badRequest(err)
	}
	role, err := internalauth.ParseRole(in.Role)
	if err != nil {
		return nil, badRequest(err)
	}
	hash, err := internalauth.HashPassword(in.Password)
	if err != nil {
		return nil, badRequest(err)
	}

	personID := strings.TrimSpace(in.PersonID)
	if role == internalauth.RoleSubject && personID == "" {
		return nil, badRequestCode(fmt.Errorf("subject users require person_id"), ErrCodeMissingRequired)
	}
	if personID != "" {
		if personID, err = normalizeReferenceID("person_id", personID); err != nil {
			return nil, err
		}
		if a.catalog != nil {
			person, err := a.catalog.GetPerson(ctx, personID)
			if err != nil {
				return nil, err
			}
			if person == nil {
				return nil, badRequestCode(fmt.Errorf("person %s not found", personID), ErrCodeInvalidReference)
			}
		}
	}

	user := &store.AuthUser{
		Username:     username,
		PasswordHash: hash,
		Role:         string(role),
		PersonID:     personID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrUsernameTaken) {
			return nil, conflictCode(fmt.Errorf("username already exists"), ErrCodeConflict)
		}
		return nil, err
	}
	return user, nil
}

func (a *AuthService) ListUsers(ctx context.Context) ([]store.AuthUser, error) {
	if a == nil || a.store == nil {
		return nil, fmt.Errorf("auth store is required")
	}
	return a.store.ListUsers(ctx)
}

func (a *AuthService) SetUserDisabled(ctx context.Context, username string, disabled bool, now time.Time) (*store.AuthUser, error) {
	if a == nil || a.store == nil {
		return nil, fmt.Errorf("auth store is required")
	}
	normalized, err := internalauth.NormalizeUsername(username)
	if err != nil {
		return nil, badRequest(err)
	}
	updated, err := a.store.SetUserDisabled(ctx, normalized, disabled, now)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, notFoundCode(fmt.Errorf("user not found"), ErrCodeUserNotFound)
	}
	return updated, nil
}

func (a *AuthService) DeleteUser(ctx context.Context, username string) (string, error) {
	if a == nil || a.store == nil {
		return "", fmt.Errorf("auth store is required")
	}
	normalized, err := internalauth.NormalizeUsername(username)
	if err != nil {
		return "", badRequest(err)
	}
	deleted, err := a.store.DeleteUser(ctx, normalized)
	if err != nil {
		return "", err
	}
	if !deleted {
		return "", notFoundCode(fmt.Errorf("user not found"), ErrCodeUserNotFound)
	}
	return normalized, nil
}

func principalForUser(user store.AuthUser) internalauth.Principal {
	role := internalauth.Role(user.Role)
	return internalauth.Principal{
		UserID:       user.ID,
		Username:     user.Username,
		Role:         role,
		PersonID:     user.PersonID,
		Capabilities: internalauth.CapabilitiesForRole(role),
	}
}
