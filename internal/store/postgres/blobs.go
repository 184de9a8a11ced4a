package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"credvault/internal/models"
	"credvault/internal/store"
)

const blobColumns = "id, sha256, size_bytes, media_type, filename, storage_backend, blob_key, uploaded_by, created_at"

// InsertBlob records a new blob row, returning store.ErrDuplicateDigest on a digest collision.
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
	if blob.ID == "" {
		id, err := store.GenerateBlobID(func(id string) (bool, error) {
			return s.exists(ctx, "blobs", id)
		})
		if err != nil {
			return err
		}
		blob.ID = id
	}
	if blob.StorageBackend == "" {
		blob.StorageBackend = "local_cas"
	}
	if blob.CreatedAt.IsZero() {
		blob.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO blobs (`+blobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, blob.ID, blob.SHA256, blob.SizeBytes, blob.MediaType, nullIfEmpty(blob.Filename),
		blob.StorageBackend, blob.BlobKey, nullIfEmpty(blob.UploadedBy), blob.CreatedAt)
	if isUniqueViolation(err, "blobs_sha256_key") {
		return store.ErrDuplicateDigest
	}
	return err
}

// GetBlob returns one blob by id, or nil when absent.
func (s *Store) GetBlob(ctx context.Context, id string) (*models.Blob, error) {
	return scanBlob(s.pool.QueryRow(ctx, `SELECT `+blobColumns+` FROM blobs WHERE id = $1`, id))
}

// GetBlobBySHA256 returns one blob by digest, or nil when absent.
func (s *Store) GetBlobBySHA256(ctx context.Context, sha string) (*models.Blob, error) {
	return scanBlob(s.pool.QueryRow(ctx, `SELECT `+blobColumns+` FROM blobs WHERE sha256 = $1`, models.NormalizeDigest(sha)))
}

// GetBlobByKey returns one blob by storage key, or nil when absent.
func (s *Store) GetBlobByKey(ctx context.Context, key string) (*models.Blob, error) {
	return scanBlob(s.pool.QueryRow(ctx, `SELECT `+blobColumns+` FROM blobs WHERE blob_key = $1`, key))
}

// CountBlobReferences counts documents and titles pointing at the blob.
func (s *Store) CountBlobReferences(ctx context.Context, blobID string) (int, error) {
	return countBlobReferences(ctx, s.pool, blobID)
}

// DeleteBlobIfUnreferenced locks the blob row, counts references and deletes it when none remain.
func (s *Store) DeleteBlobIfUnreferenced(ctx context.Context, blobID string) (store.BlobDeleteResult, error) {
	var result store.BlobDeleteResult
	err := s.inTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		result = store.BlobDeleteResult{}
		blob, err := scanBlob(tx.QueryRow(ctx, `SELECT `+blobColumns+` FROM blobs WHERE id = $1 FOR UPDATE`, blobID))
		if err != nil || blob == nil {
			return err
		}
		result.Blob = blob

		refs, err := countBlobReferences(ctx, tx, blobID)
		if err != nil {
			return err
		}
		result.References = refs
		if refs > 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, `DELETE FROM blobs WHERE id = $1`, blobID); err != nil {
			if IsForeignKeyViolation(err) {
				return store.ErrBlobReferenced
			}
			return err
		}
		result.Deleted = true
		return nil
	})
	if err != nil {
		return store.BlobDeleteResult{Blob: result.Blob, References: result.References}, err
	}
	return result, nil
}

// ListUnreferencedBlobs returns blobs older than the cutoff that no credential references.
func (s *Store) ListUnreferencedBlobs(ctx context.Context, createdBefore time.Time, limit int) ([]models.Blob, error) {
	query := `
		SELECT b.id, b.sha256, b.size_bytes, b.media_type, b.filename, b.storage_backend, b.blob_key, b.uploaded_by, b.created_at
		FROM blobs b
		WHERE b.created_at < $1
		  AND NOT EXISTS (SELECT 1 FROM documents d WHERE d.blob_id = b.id)
		  AND NOT EXISTS (SELECT 1 FROM titles t WHERE t.blob_id = b.id)
		ORDER BY b.created_at ASC`
	args := []any{createdBefore}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
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
		blobs = append(blobs, *blob)
	}
	return blobs, rows.Err()
}

func (s *Store) exists(ctx context.Context, table, id string) (bool, error) {
	var found bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&found)
	return found, err
}

func countBlobReferences(ctx context.Context, db DBTX, blobID string) (int, error) {
	var count int
	err := db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM documents WHERE blob_id = $1) +
			(SELECT COUNT(*) FROM titles WHERE blob_id = $1)
	`, blobID).Scan(&count)
	return count, err
}

func scanBlob(row pgx.Row) (*models.Blob, error) {
	var blob models.Blob
	var filename, uploadedBy *string
	err := row.Scan(&blob.ID, &blob.SHA256, &blob.SizeBytes, &blob.MediaType, &filename,
		&blob.StorageBackend, &blob.BlobKey, &uploadedBy, &blob.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	blob.Filename = deref(filename)
	blob.UploadedBy = deref(uploadedBy)
	blob.CreatedAt = blob.CreatedAt.UTC()
	return &blob, nil
}

func nullIfEmpty(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
