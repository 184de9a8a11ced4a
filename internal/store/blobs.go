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

const blobColumns = "id, sha256, size_bytes, media_type, filename, storage_backend, blob_key, uploaded_by, created_at"

// InsertBlob records a new blob row. A digest that is already recorded yields
// ErrDuplicateDigest so callers can distinguish re-uploads from fresh content.
func (s *Store) InsertBlob(ctx context.Context, blob *models.Blob) error {
	if blob == nil {
		return fmt.Errorf("blob is required")
	}
	blob.SHA256 = models.NormalizeDigest(blob.SHA256)
	blob.BlobKey = strings.TrimSpace(blob.BlobKey)
	if !models.IsValidDigest(blob.SHA256) {
		return fmt.Errorf("sha256 must be 64 lowercase hex characters")
	}
	if blob.BlobKey == "" {
		return fmt.Errorf("blob_key is required")
	}
	if blob.SizeBytes < 0 {
		return fmt.Errorf("size_bytes must be >= 0")
	}
	if strings.TrimSpace(blob.MediaType) == "" {
		return fmt.Errorf("media_type is required")
	}

	if strings.TrimSpace(blob.ID) == "" {
		generated, err := GenerateBlobID(func(id string) (bool, error) {
			return s.blobIDExists(ctx, id)
		})
		if err != nil {
			return err
		}
		blob.ID = generated
	}
	if strings.TrimSpace(blob.StorageBackend) == "" {
		blob.StorageBackend = "local_cas"
	}
	if blob.CreatedAt.IsZero() {
		blob.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blobs (`+blobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, blob.ID, blob.SHA256, blob.SizeBytes, blob.MediaType, nullIfEmpty(blob.Filename),
		blob.StorageBackend, blob.BlobKey, nullIfEmpty(blob.UploadedBy), dbFormatTime(blob.CreatedAt))
	if isSQLiteUnique(err, "blobs.sha256") {
		return ErrDuplicateDigest
	}
	return err
}

// GetBlob returns one blob by id, or nil when absent.
func (s *Store) GetBlob(ctx context.Context, id string) (*models.Blob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+blobColumns+` FROM blobs WHERE id = ?`, id)
	return scanBlob(row)
}

// GetBlobBySHA256 returns one blob by digest, or nil when absent.
func (s *Store) GetBlobBySHA256(ctx context.Context, sha string) (*models.Blob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+blobColumns+` FROM blobs WHERE sha256 = ?`, models.NormalizeDigest(sha))
	return scanBlob(row)
}

// GetBlobByKey returns one blob by storage key, or nil when absent.
func (s *Store) GetBlobByKey(ctx context.Context, key string) (*models.Blob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+blobColumns+` FROM blobs WHERE blob_key = ?`, key)
	return scanBlob(row)
}

// CountBlobReferences counts documents and titles pointing at the blob.
func (s *Store) CountBlobReferences(ctx context.Context, blobID string) (int, error) {
	return countBlobReferences(ctx, s.db, blobID)
}

// DeleteBlobIfUnreferenced removes the blob row only when no credential refers to it.
// Result.Blob is nil when the blob does not exist.
func (s *Store) DeleteBlobIfUnreferenced(ctx context.Context, blobID string) (result BlobDeleteResult, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	blob, err := scanBlob(tx.QueryRowContext(ctx, `SELECT `+blobColumns+` FROM blobs WHERE id = ?`, blobID))
	if err != nil {
		return result, err
	}
	if blob == nil {
		return result, tx.Commit()
	}
	result.Blob = blob

	refs, err := countBlobReferences(ctx, tx, blobID)
	if err != nil {
		return result, err
	}
	result.References = refs
	if refs > 0 {
		return result, tx.Commit()
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM blobs WHERE id = ?`, blobID); err != nil {
		if isSQLiteForeignKey(err) {
			err = ErrBlobReferenced
		}
		return result, err
	}
	if err = tx.Commit(); err != nil {
		return result, err
	}
	result.Deleted = true
	return result, nil
}

// ListUnreferencedBlobs returns blobs created before the cutoff with no referencing credential.
func (s *Store) ListUnreferencedBlobs(ctx context.Context, createdBefore time.Time, limit int) ([]models.Blob, error) {
	query := `
		SELECT b.id, b.sha256, b.size_bytes, b.media_type, b.filename, b.storage_backend, b.blob_key, b.uploaded_by, b.created_at
		FROM blobs b
		LEFT JOIN documents d ON d.blob_id = b.id
		LEFT JOIN titles t ON t.blob_id = b.id
		WHERE d.id IS NULL AND t.id IS NULL AND b.created_at < ?
		ORDER BY b.created_at ASC`
	args := []any{dbFormatTime(createdBefore)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	blobs := []models.Blob{}
	for rows.Next() {
		blob, err := scanBlob(rows)
		if err != nil {
			return nil, err
		}
		if blob != nil {
			blobs = append(blobs, *blob)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return blobs, nil
}

func (s *Store) blobIDExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM blobs WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func countBlobReferences(ctx context.Context, q queryRower, blobID string) (int, error) {
	var count int
	err := q.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM documents WHERE blob_id = ?) +
			(SELECT COUNT(*) FROM titles WHERE blob_id = ?)
	`, blobID, blobID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func scanBlob(scanner interface {
	Scan(dest ...any) error
}) (*models.Blob, error) {
	var blob models.Blob
	var filename sql.NullString
	var uploadedBy sql.NullString
	var createdAt string
	err := scanner.Scan(&blob.ID, &blob.SHA256, &blob.SizeBytes, &blob.MediaType, &filename,
		&blob.StorageBackend, &blob.BlobKey, &uploadedBy, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	blob.Filename = filename.String
	blob.UploadedBy = uploadedBy.String
	parsed, err := dbParseTime(createdAt)
	if err != nil {
		return nil, err
	}
	blob.CreatedAt = parsed
	return &blob, nil
}
