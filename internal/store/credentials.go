package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"credvault/internal/models"
)

func credentialTable(kind models.CredentialKind) (string, error) {
	switch kind {
	case models.KindDocument:
		return "documents", nil
	case models.KindTitle:
		return "titles", nil
	default:
		return "", fmt.Errorf("unknown credential kind %q", kind)
	}
}

func credentialSelect(kind models.CredentialKind) (string, error) {
	table, err := credentialTable(kind)
	if err != nil {
		return "", err
	}
	current := "NULL"
	if kind == models.KindDocument {
		current = "c.is_current"
	}
	return `
		SELECT c.id, c.person_id, c.type_id, COALESCE(ct.name, ''), c.description, c.blob_id, COALESCE(b.sha256, ''),
			c.state, c.justification, c.decided_by, c.decided_at, ` + current + `, c.submitted_by, c.created_at, c.updated_at
		FROM ` + table + ` c
		LEFT JOIN credential_types ct ON ct.id = c.type_id
		LEFT JOIN blobs b ON b.id = c.blob_id`, nil
}

// CredentialIDExists reports whether an id is taken within the kind's table.
func (s *Store) CredentialIDExists(ctx context.Context, kind models.CredentialKind, id string) (bool, error) {
	table, err := credentialTable(kind)
	if err != nil {
		return false, err
	}
	var one int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateCredential inserts a pending document or title. A new document supersedes
// earlier documents of the same person and type.
func (s *Store) CreateCredential(ctx context.Context, credential *models.Credential) (err error) {
	if credential == nil {
		return fmt.Errorf("credential is required")
	}
	table, err := credentialTable(credential.Kind)
	if err != nil {
		return err
	}
	if strings.TrimSpace(credential.ID) == "" {
		generated, err := GenerateCredentialID(credential.Kind, func(id string) (bool, error) {
			return s.CredentialIDExists(ctx, credential.Kind, id)
		})
		if err != nil {
			return err
		}
		credential.ID = generated
	}
	if credential.State == "" {
		credential.State = models.StatePending
	}
	now := time.Now().UTC()
	if credential.CreatedAt.IsZero() {
		credential.CreatedAt = now
	}
	if credential.UpdatedAt.IsZero() {
		credential.UpdatedAt = credential.CreatedAt
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if credential.Kind == models.KindDocument {
		if _, err = tx.ExecContext(ctx, `
			UPDATE documents SET is_current = 0, updated_at = ?
			WHERE person_id = ? AND type_id = ? AND is_current = 1
		`, dbFormatTime(credential.CreatedAt), credential.PersonID, credential.TypeID); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO documents (id, person_id, type_id, description, blob_id, state, justification,
				decided_by, decided_at, is_current, submitted_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
		`, credential.ID, credential.PersonID, credential.TypeID, nullIfEmpty(credential.Description),
			nullIfEmpty(credential.BlobID), string(credential.State), credential.Justification,
			nullIfEmpty(credential.DecidedBy), nullTime(credential.DecidedAt), nullIfEmpty(credential.SubmittedBy),
			dbFormatTime(credential.CreatedAt), dbFormatTime(credential.UpdatedAt))
	} else {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO `+table+` (id, person_id, type_id, description, blob_id, state, justification,
				decided_by, decided_at, submitted_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, credential.ID, credential.PersonID, credential.TypeID, nullIfEmpty(credential.Description),
			nullIfEmpty(credential.BlobID), string(credential.State), credential.Justification,
			nullIfEmpty(credential.DecidedBy), nullTime(credential.DecidedAt), nullIfEmpty(credential.SubmittedBy),
			dbFormatTime(credential.CreatedAt), dbFormatTime(credential.UpdatedAt))
	}
	if err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	if credential.Kind == models.KindDocument {
		current := true
		credential.IsCurrent = &current
	}
	credential.StateName = credential.State.DisplayName()
	return nil
}

// GetCredential returns one credential, or nil when absent.
func (s *Store) GetCredential(ctx context.Context, kind models.CredentialKind, id string) (*models.Credential, error) {
	query, err := credentialSelect(kind)
	if err != nil {
		return nil, err
	}
	return scanCredential(kind, s.db.QueryRowContext(ctx, query+` WHERE c.id = ?`, id))
}

// ListCredentialsByPerson lists one person's credentials, newest first.
func (s *Store) ListCredentialsByPerson(ctx context.Context, kind models.CredentialKind, personID string) ([]models.Credential, error) {
	query, err := credentialSelect(kind)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query+` WHERE c.person_id = ? ORDER BY c.created_at DESC, c.id ASC`, personID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	credentials := []models.Credential{}
	for rows.Next() {
		credential, err := scanCredential(kind, rows)
		if err != nil {
			return nil, err
		}
		if credential != nil {
			credentials = append(credentials, *credential)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return credentials, nil
}

// RecordDecision stores a review outcome and returns the updated row, or nil when absent.
func (s *Store) RecordDecision(ctx context.Context, kind models.CredentialKind, id string, decision models.Decision) (_ *models.Credential, err error) {
	table, err := credentialTable(kind)
	if err != nil {
		return nil, err
	}
	query, err := credentialSelect(kind)
	if err != nil {
		return nil, err
	}
	if decision.DecidedAt.IsZero() {
		decision.DecidedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	result, err := tx.ExecContext(ctx, `
		UPDATE `+table+`
		SET state = ?, justification = ?, decided_by = ?, decided_at = ?, updated_at = ?
		WHERE id = ?
	`, string(decision.State), decision.Justification, nullIfEmpty(decision.DecidedBy),
		dbFormatTime(decision.DecidedAt), dbFormatTime(decision.DecidedAt), id)
	if err != nil {
		return nil, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, tx.Commit()
	}

	credential, err := scanCredential(kind, tx.QueryRowContext(ctx, query+` WHERE c.id = ?`, id))
	if err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return credential, nil
}

// DeleteCredential removes one credential and returns the deleted row, or nil when absent.
// Deleting the current document promotes the newest remaining one of the same person and type.
func (s *Store) DeleteCredential(ctx context.Context, kind models.CredentialKind, id string) (_ *models.Credential, err error) {
	table, err := credentialTable(kind)
	if err != nil {
		return nil, err
	}
	query, err := credentialSelect(kind)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	credential, err := scanCredential(kind, tx.QueryRowContext(ctx, query+` WHERE c.id = ?`, id))
	if err != nil {
		return nil, err
	}
	if credential == nil {
		return nil, tx.Commit()
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id); err != nil {
		return nil, err
	}
	if credential.IsCurrent != nil && *credential.IsCurrent {
		if _, err = tx.ExecContext(ctx, `
			UPDATE documents SET is_current = 1, updated_at = ?
			WHERE id = (
				SELECT id FROM documents
				WHERE person_id = ? AND type_id = ?
				ORDER BY created_at DESC, id DESC
				LIMIT 1
			)
		`, dbFormatTime(time.Now().UTC()), credential.PersonID, credential.TypeID); err != nil {
			return nil, err
		}
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return credential, nil
}

func scanCredential(kind models.CredentialKind, scanner interface {
	Scan(dest ...any) error
}) (*models.Credential, error) {
	credential := models.Credential{Kind: kind}
	var (
		description   sql.NullString
		blobID        sql.NullString
		state         string
		justification sql.NullString
		decidedBy     sql.NullString
		decidedAt     sql.NullString
		isCurrent     sql.NullInt64
		submittedBy   sql.NullString
		createdAt     string
		updatedAt     string
	)
	err := scanner.Scan(&credential.ID, &credential.PersonID, &credential.TypeID, &credential.TypeName,
		&description, &blobID, &credential.BlobSHA256, &state, &justification, &decidedBy, &decidedAt,
		&isCurrent, &submittedBy, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	credential.Description = description.String
	credential.BlobID = blobID.String
	credential.State = models.VerificationState(state)
	credential.StateName = credential.State.DisplayName()
	if justification.Valid {
		value := justification.String
		credential.Justification = &value
	}
	credential.DecidedBy = decidedBy.String
	credential.SubmittedBy = submittedBy.String
	if isCurrent.Valid {
		current := isCurrent.Int64 != 0
		credential.IsCurrent = &current
	}

	if credential.DecidedAt, err = parseNullTime(decidedAt); err != nil {
		return nil, err
	}
	if credential.CreatedAt, err = dbParseTime(createdAt); err != nil {
		return nil, err
	}
	if credential.UpdatedAt, err = dbParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &credential, nil
}
