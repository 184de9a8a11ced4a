package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

const authUserColumns = "id, username, password_hash, role, person_id, disabled, created_at, updated_at"

// CountEnabledUsers returns the number of non-disabled provisioned users.
func (s *Store) CountEnabledUsers(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE disabled = 0").Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// CreateUser provisions one user. ID and timestamps are filled in when empty.
func (s *Store) CreateUser(ctx context.Context, user *AuthUser) error {
	if user == nil {
		return fmt.Errorf("user is required")
	}
	user.Username = normalizeAuthUsername(user.Username)
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
		id, err := generateAuthID("au")
		if err != nil {
			return err
		}
		user.ID = id
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}

	disabled := 0
	if user.Disabled {
		disabled = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (`+authUserColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, user.ID, user.Username, user.PasswordHash, user.Role, nullIfEmpty(user.PersonID), disabled,
		dbFormatTime(user.CreatedAt), dbFormatTime(user.UpdatedAt))
	if isSQLiteUnique(err, "users.username") {
		return ErrUsernameTaken
	}
	return err
}

// GetUserByUsername returns a provisioned user by normalized username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*AuthUser, error) {
	username = normalizeAuthUsername(username)
	if username == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+authUserColumns+` FROM users WHERE username = ? LIMIT 1`, username)
	return scanAuthUser(row)
}

// GetUserByID returns a provisioned user by id.
func (s *Store) GetUserByID(ctx context.Context, id string) (*AuthUser, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+authUserColumns+` FROM users WHERE id = ? LIMIT 1`, id)
	return scanAuthUser(row)
}

// ListUsers returns all provisioned users sorted by username.
func (s *Store) ListUsers(ctx context.Context) ([]AuthUser, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+authUserColumns+` FROM users ORDER BY username ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]AuthUser, 0)
	for rows.Next() {
		user, err := scanAuthUser(rows)
		if err != nil {
			return nil, err
		}
		if user == nil {
			continue
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// SetUserDisabled updates one user's disabled state by username.
func (s *Store) SetUserDisabled(ctx context.Context, username string, disabled bool, now time.Time) (*AuthUser, error) {
	username = normalizeAuthUsername(username)
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}

	disabledInt := 0
	if disabled {
		disabledInt = 1
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET disabled = ?, updated_at = ?
		WHERE username = ?
	`, disabledInt, dbFormatTime(now), username)
	if err != nil {
		return nil, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, nil
	}
	return s.GetUserByUsername(ctx, username)
}

// DeleteUser deletes one user by username.
func (s *Store) DeleteUser(ctx context.Context, username string) (bool, error) {
	username = normalizeAuthUsername(username)
	if username == "" {
		return false, fmt.Errorf("username is required")
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE username = ?`, username)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func scanAuthUser(scanner interface {
	Scan(dest ...any) error
}) (*AuthUser, error) {
	var user AuthUser
	var personID sql.NullString
	var disabled int
	var createdAt string
	var updatedAt string
	if err := scanner.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role, &personID, &disabled, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	user.PersonID = personID.String
	user.Disabled = disabled != 0
	parsedCreated, err := dbParseTime(createdAt)
	if err != nil {
		return nil, err
	}
	parsedUpdated, err := dbParseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	user.CreatedAt = parsedCreated
	user.UpdatedAt = parsedUpdated
	return &user, nil
}

func normalizeAuthUsername(username string) string {
	return strings.TrimSpace(strings.ToLower(username))
}

func generateAuthID(prefix string) (string, error) {
	id, err := randomHex(10)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s", prefix, id), nil
}

func randomHex(numBytes int) (string, error) {
	if numBytes <= 0 {
		return "", fmt.Errorf("numBytes must be > 0")
	}
	buf := make([]byte, numBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
