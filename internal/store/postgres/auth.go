package postgres

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"credvault/internal/store"
)

const authUserColumns = "id, username, password_hash, role, person_id, disabled, created_at, updated_at"

// CountEnabledUsers returns the number of non-disabled provisioned users.
func (s *Store) CountEnabledUsers(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE NOT disabled`).Scan(&count)
	return count, err
}

// CreateUser provisions one user, returning store.ErrUsernameTaken on a duplicate.
func (s *Store) CreateUser(ctx context.Context, user *store.AuthUser) error {
	if user == nil {
		return fmt.Errorf("user is required")
	}
	user.Username = strings.TrimSpace(strings.ToLower(user.Username))
	if user.Username == "" {
		return fmt.Errorf("username is required")
	}
	if strings.TrimSpace(user.PasswordHash) == "" {
		return fmt.Errorf("password hash is required")
	}
	if strings.TrimSpace(user.Role) == "" {
		return fmt.Errorf("role is required")
	}
	if user.ID == "" {
		buf := make([]byte, 10)
		if _, err := rand.Read(buf); err != nil {
			return err
		}
		user.ID = "au-" + hex.EncodeToString(buf)
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (`+authUserColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, user.ID, user.Username, user.PasswordHash, user.Role, nullIfEmpty(user.PersonID), user.Disabled,
		user.CreatedAt, user.UpdatedAt)
	if isUniqueViolation(err, "users_username_key") {
		return store.ErrUsernameTaken
	}
	return err
}

// GetUserByUsername returns a provisioned user by normalized username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*store.AuthUser, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	if username == "" {
		return nil, nil
	}
	return scanAuthUser(s.pool.QueryRow(ctx, `SELECT `+authUserColumns+` FROM users WHERE username = $1`, username))
}

// GetUserByID returns a provisioned user by id.
func (s *Store) GetUserByID(ctx context.Context, id string) (*store.AuthUser, error) {
	if strings.TrimSpace(id) == "" {
		return nil, nil
	}
	return scanAuthUser(s.pool.QueryRow(ctx, `SELECT `+authUserColumns+` FROM users WHERE id = $1`, id))
}

// ListUsers returns all provisioned users sorted by username.
func (s *Store) ListUsers(ctx context.Context) ([]store.AuthUser, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+authUserColumns+` FROM users ORDER BY username ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]store.AuthUser, 0)
	for rows.Next() {
		user, err := scanAuthUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// SetUserDisabled updates one user's disabled state by username.
func (s *Store) SetUserDisabled(ctx context.Context, username string, disabled bool, now time.Time) (*store.AuthUser, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}
	return scanAuthUser(s.pool.QueryRow(ctx, `
		UPDATE users SET disabled = $1, updated_at = $2
		WHERE username = $3
		RETURNING `+authUserColumns, disabled, now, username))
}

// DeleteUser deletes one user by username.
func (s *Store) DeleteUser(ctx context.Context, username string) (bool, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	if username == "" {
		return false, fmt.Errorf("username is required")
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE username = $1`, username)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanAuthUser(row pgx.Row) (*store.AuthUser, error) {
	var user store.AuthUser
	var personID *string
	err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role, &personID, &user.Disabled,
		&user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	user.PersonID = deref(personID)
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return &user, nil
}
