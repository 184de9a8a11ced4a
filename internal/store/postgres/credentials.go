package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"credvault/internal/models"
	"credvault/internal/store"
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
	current := "NULL::boolean"
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
	return s.exists(ctx, table, id)
}

// CreateCredential inserts a pending credential; new documents supersede earlier ones of the same type.
func (s *Store) CreateCredential(ctx context.Context, credential *models.Credential) error {
	if credential == nil {
		return fmt.Errorf("credential is required")
	}
	table, err := credentialTable(credential.Kind)
	if err != nil {
		return err
	}
	if credential.ID == "" {
		id, err := store.GenerateCredentialID(credential.Kind, func(id string) (bool, error) {
			return s.exists(ctx, table, id)
		})
		if err != nil {
			return err
		}
		credential.ID = id
	}
	if credential.State == "" {
		credential.State = models.StatePending
	}
	if credential.CreatedAt.IsZero() {
		credential.CreatedAt = time.Now().UTC()
	}
	if credential.UpdatedAt.IsZero() {
		credential.UpdatedAt = credential.CreatedAt
	}

	err = s.inTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if credential.Kind == models.KindDocument {
			if _, err := tx.Exec(ctx, `
				UPDATE documents SET is_current = FALSE, updated_at = $1
				WHERE person_id = $2 AND type_id = $3 AND is_current
			`, credential.CreatedAt, credential.PersonID, credential.TypeID); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO `+table+` (id, person_id, type_id, description, blob_id, state, justification,
				decided_by, decided_at, submitted_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`, credential.ID, credential.PersonID, credential.TypeID, nullIfEmpty(credential.Description),
			nullIfEmpty(credential.BlobID), string(credential.State), credential.Justification,
			nullIfEmpty(credential.DecidedBy), credential.DecidedAt, nullIfEmpty(credential.SubmittedBy),
			credential.CreatedAt, credential.UpdatedAt)
		return err
	})
	if err != nil {
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
	return scanCredential(kind, s.pool.QueryRow(ctx, query+` WHERE c.id = $1`, id))
}

// ListCredentialsByPerson lists one person's credentials, newest first.
func (s *Store) ListCredentialsByPerson(ctx context.Context, kind models.CredentialKind, personID string) ([]models.Credential, error) {
	query, err := credentialSelect(kind)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, query+` WHERE c.person_id = $1 ORDER BY c.created_at DESC, c.id ASC`, personID)
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
		credentials = append(credentials, *credential)
	}
	return credentials, rows.Err()
}

// RecordDecision stores a review outcome with a single UPDATE and returns the row.
func (s *Store) RecordDecision(ctx context.Context, kind models.CredentialKind, id string, decision models.Decision) (*models.Credential, error) {
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

	var credential *models.Credential
	err = s.inTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE `+table+`
			SET state = $1, justification = $2, decided_by = $3, decided_at = $4, updated_at = $4
			WHERE id = $5
		`, string(decision.State), decision.Justification, nullIfEmpty(decision.DecidedBy), decision.DecidedAt, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		credential, err = scanCredential(kind, tx.QueryRow(ctx, query+` WHERE c.id = $1`, id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return credential, nil
}

// DeleteCredential removes one credential and returns the deleted row, or nil when absent.
func (s *Store) DeleteCredential(ctx context.Context, kind models.CredentialKind, id string) (*models.Credential, error) {
	table, err := credentialTable(kind)
	if err != nil {
		return nil, err
	}
	query, err := credentialSelect(kind)
	if err != nil {
		return nil, err
	}

	var credential *models.Credential
	err = s.inTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		found, err := scanCredential(kind, tx.QueryRow(ctx, query+` WHERE c.id = $1 FOR UPDATE OF c`, id))
		if err != nil || found == nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE id = $1`, id); err != nil {
			return err
		}
		if found.IsCurrent != nil && *found.IsCurrent {
			if _, err := tx.Exec(ctx, `
				UPDATE documents SET is_current = TRUE, updated_at = $1
				WHERE id = (
					SELECT id FROM documents
					WHERE person_id = $2 AND type_id = $3
					ORDER BY created_at DESC, id DESC
					LIMIT 1
				)
			`, time.Now().UTC(), found.PersonID, found.TypeID); err != nil {
				return err
			}
		}
		credential = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return credential, nil
}

func scanCredential(kind models.CredentialKind, row pgx.Row) (*models.Credential, error) {
	credential := models.Credential{Kind: kind}
	var (
		description *string
		blobID      *string
		state       string
		decidedBy   *string
		submittedBy *string
	)
	err := row.Scan(&credential.ID, &credential.PersonID, &credential.TypeID, &credential.TypeName,
		&description, &blobID, &credential.BlobSHA256, &state, &credential.Justification, &decidedBy,
		&credential.DecidedAt, &credential.IsCurrent, &submittedBy, &credential.CreatedAt, &credential.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	credential.Description = deref(description)
	credential.BlobID = deref(blobID)
	credential.DecidedBy = deref(decidedBy)
	credential.SubmittedBy = deref(submittedBy)
	credential.State = models.VerificationState(state)
	credential.StateName = credential.State.DisplayName()
	if credential.DecidedAt != nil {
		decided := credential.DecidedAt.UTC()
		credential.DecidedAt = &decided
	}
	credential.CreatedAt = credential.CreatedAt.UTC()
	credential.UpdatedAt = credential.UpdatedAt.UTC()
	return &credential, nil
}
