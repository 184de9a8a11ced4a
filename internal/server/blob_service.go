package server

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"credvault/internal/blobstore"
	"credvault/internal/config"
	"credvault/internal/metrics"
	"credvault/internal/models"
	"credvault/internal/store"
)

const fallbackContentMediaType = "application/octet-stream"

// BlobPolicy bounds what the blob service accepts and how GC behaves.
type BlobPolicy struct {
	MaxUploadBytes    int64
	AllowedMediaTypes []string
	GCBatchSize       int
	GCMinAge          time.Duration
}

// DefaultBlobPolicy mirrors the configuration defaults.
func DefaultBlobPolicy() BlobPolicy {
	return BlobPolicy{
		MaxUploadBytes:    config.DefaultBlobMaxUploadBytes,
		AllowedMediaTypes: config.DefaultAllowedMediaTypes,
		GCBatchSize:       config.DefaultBlobGCBatchSize,
		GCMinAge:          config.DefaultBlobGCMinAge,
	}
}

// BlobService stores content once per digest and releases it only when unreferenced.
type BlobService struct {
	meta    store.BlobMetadataStore
	objects blobstore.BlobStore
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	maxUploadBytes int64
	allowed        map[string]struct{}
	gcBatchSize    int
	gcMinAge       time.Duration
}

// PutBlobInput describes one upload.
type PutBlobInput struct {
	Content    io.Reader
	MediaType  string
	Filename   string
	UploaderID string
}

// PutBlobResult reports the stored blob. Duplicate is set when the digest was
// already recorded and nothing was written.
type PutBlobResult struct {
	Blob      models.Blob
	Duplicate bool
}

// BlobContent is an open stream of stored bytes.
type BlobContent struct {
	Reader io.ReadCloser
	Blob   models.Blob
}

// BlobGCResult reports one GC run.
type BlobGCResult struct {
	DryRun           bool  `json:"dry_run"`
	RowCandidates    int   `json:"row_candidates"`
	RowsDeleted      int   `json:"rows_deleted"`
	ObjectCandidates int   `json:"object_candidates"`
	ObjectsDeleted   int   `json:"objects_deleted"`
	ForeignObjects   int   `json:"foreign_objects"`
	FailedCount      int   `json:"failed_count"`
	ReclaimedBytes   int64 `json:"reclaimed_bytes"`
}

// NewBlobService constructs a BlobService.
func NewBlobService(meta store.BlobMetadataStore, objects blobstore.BlobStore, m *metrics.Metrics, logger *slog.Logger) *BlobService {
	if logger == nil {
		logger = slog.Default()
	}
	svc := &BlobService{
		meta:    meta,
		objects: objects,
		metrics: m,
		logger:  logger.With("component", "blobs"),
		now:     func() time.Time { return time.Now().UTC() },
	}
	svc.ConfigurePolicy(DefaultBlobPolicy())
	return svc
}

// ConfigurePolicy overrides upload limits and GC settings.
func (s *BlobService) ConfigurePolicy(policy BlobPolicy) {
	if s == nil {
		return
	}
	if policy.MaxUploadBytes <= 0 {
		policy.MaxUploadBytes = config.DefaultBlobMaxUploadBytes
	}
	allowed := map[string]struct{}{}
	for _, raw := range policy.AllowedMediaTypes {
		mediaType, err := normalizeMediaType(raw)
		if err != nil || mediaType == "" {
			continue
		}
		allowed[mediaType] = struct{}{}
	}
	if policy.GCBatchSize <= 0 {
		policy.GCBatchSize = config.DefaultBlobGCBatchSize
	}
	if policy.GCMinAge < 0 {
		policy.GCMinAge = 0
	}
	s.maxUploadBytes = policy.MaxUploadBytes
	s.allowed = allowed
	s.gcBatchSize = policy.GCBatchSize
	s.gcMinAge = policy.GCMinAge
}

// MaxUploadBytes returns the configured size ceiling.
func (s *BlobService) MaxUploadBytes() int64 {
	return s.maxUploadBytes
}

// Put validates, hashes and stores one upload. Bytes are written before the
// metadata row; a failed insert leaves an orphan object for GC.
func (s *BlobService) Put(ctx context.Context, in PutBlobInput) (PutBlobResult, error) {
	var zero PutBlobResult
	if s == nil || s.meta == nil || s.objects == nil {
		return zero, internalError(fmt.Errorf("blob service is not configured"))
	}
	if in.Content == nil {
		return zero, badRequestCode(fmt.Errorf("content is required"), ErrCodeMissingRequired)
	}

	mediaType, err := normalizeMediaType(in.MediaType)
	if err != nil {
		s.metrics.ObserveUpload(metrics.UploadRejected, 0)
		return zero, err
	}
	if err := s.validateMediaType(mediaType); err != nil {
		s.metrics.ObserveUpload(metrics.UploadRejected, 0)
		return zero, err
	}

	content, err := io.ReadAll(io.LimitReader(in.Content, s.maxUploadBytes+1))
	if err != nil {
		return zero, badRequest(fmt.Errorf("read content: %w", err))
	}
	if int64(len(content)) > s.maxUploadBytes {
		s.metrics.ObserveUpload(metrics.UploadRejected, 0)
		return zero, badRequestCode(fmt.Errorf("content exceeds %d bytes", s.maxUploadBytes), ErrCodeBlobTooLarge)
	}
	if len(content) == 0 {
		s.metrics.ObserveUpload(metrics.UploadRejected, 0)
		return zero, badRequestCode(fmt.Errorf("content is empty"), ErrCodeMissingRequired)
	}

	sum := sha256.Sum256(content)
	digest := hex.EncodeToString(sum[:])

	existing, err := s.meta.GetBlobBySHA256(ctx, digest)
	if err != nil {
		s.metrics.ObserveUpload(metrics.UploadFailed, 0)
		return zero, err
	}
	if existing != nil {
		s.metrics.ObserveUpload(metrics.UploadDuplicate, 0)
		return PutBlobResult{Blob: *existing, Duplicate: true}, nil
	}

	now := s.now()
	filename := strings.TrimSpace(in.Filename)
	key, err := blobstore.ObjectKey(digest, now, filename)
	if err != nil {
		return zero, internalError(err)
	}
	put, err := s.objects.Put(ctx, key, bytes.NewReader(content), mediaType)
	if err != nil {
		s.metrics.ObserveUpload(metrics.UploadFailed, 0)
		return zero, makeAPIError(http.StatusInternalServerError, "internal", ErrCodeBlobStorage, fmt.Errorf("write blob: %w", err))
	}
	if put.SHA256 != digest {
		s.metrics.ObserveUpload(metrics.UploadFailed, 0)
		return zero, internalError(fmt.Errorf("digest mismatch after write"))
	}

	blob := &models.Blob{
		SHA256:         digest,
		SizeBytes:      put.SizeBytes,
		MediaType:      mediaType,
		Filename:       filename,
		StorageBackend: s.objects.Backend(),
		BlobKey:        put.BlobKey,
		UploadedBy:     strings.TrimSpace(in.UploaderID),
		CreatedAt:      now,
	}
	if err := s.meta.InsertBlob(ctx, blob); err != nil {
		if errors.Is(err, store.ErrDuplicateDigest) {
			return s.resolveConcurrentDuplicate(ctx, digest, put.BlobKey)
		}
		s.metrics.ObserveUpload(metrics.UploadFailed, 0)
		s.logger.Warn("blob row insert failed; object left for gc", "sha256", digest, "blob_key", put.BlobKey, "error", err)
		return zero, err
	}

	s.metrics.ObserveUpload(metrics.UploadStored, blob.SizeBytes)
	s.logger.Debug("blob stored", "sha256", digest, "size_bytes", blob.SizeBytes, "backend", blob.StorageBackend)
	return PutBlobResult{Blob: *blob}, nil
}

// resolveConcurrentDuplicate handles a digest inserted by another request
// between lookup and insert.
func (s *BlobService) resolveConcurrentDuplicate(ctx context.Context, digest, ownKey string) (PutBlobResult, error) {
	if err := s.objects.Delete(ctx, ownKey); err != nil && !errors.Is(err, blobstore.ErrObjectNotFound) {
		s.logger.Warn("remove losing duplicate object", "blob_key", ownKey, "error", err)
	}
	existing, err := s.meta.GetBlobBySHA256(ctx, digest)
	if err != nil {
		return PutBlobResult{}, err
	}
	if existing == nil {
		return PutBlobResult{}, internalError(fmt.Errorf("blob %s vanished after duplicate insert", digest))
	}
	s.metrics.ObserveUpload(metrics.UploadDuplicate, 0)
	return PutBlobResult{Blob: *existing, Duplicate: true}, nil
}

// Get returns the blob descriptor for digest.
func (s *BlobService) Get(ctx context.Context, digest string) (models.Blob, error) {
	var zero models.Blob
	if s == nil || s.meta == nil {
		return zero, internalError(fmt.Errorf("blob service is not configured"))
	}
	digest, err := normalizeDigest(digest)
	if err != nil {
		return zero, err
	}
	blob, err := s.meta.GetBlobBySHA256(ctx, digest)
	if err != nil {
		return zero, err
	}
	if blob == nil {
		return zero, notFoundCode(fmt.Errorf("blob not found"), ErrCodeBlobNotFound)
	}
	return *blob, nil
}

// Open streams the stored bytes for digest.
func (s *BlobService) Open(ctx context.Context, digest string) (*BlobContent, error) {
	blob, err := s.Get(ctx, digest)
	if err != nil {
		return nil, err
	}
	rc, err := s.objects.Open(ctx, blob.BlobKey)
	if err != nil {
		if errors.Is(err, blobstore.ErrObjectNotFound) {
			s.logger.Warn("blob row without object", "sha256", blob.SHA256, "blob_key", blob.BlobKey)
			return nil, notFoundCode(fmt.Errorf("blob content not found"), ErrCodeBlobNotFound)
		}
		return nil, makeAPIError(http.StatusInternalServerError, "internal", ErrCodeBlobStorage, err)
	}
	if blob.MediaType == "" {
		blob.MediaType = fallbackContentMediaType
	}
	return &BlobContent{Reader: rc, Blob: blob}, nil
}

// CountReferences returns how many documents and titles point at digest.
func (s *BlobService) CountReferences(ctx context.Context, digest string) (models.Blob, int, error) {
	blob, err := s.Get(ctx, digest)
	if err != nil {
		return blob, 0, err
	}
	refs, err := s.meta.CountBlobReferences(ctx, blob.ID)
	if err != nil {
		return blob, 0, err
	}
	return blob, refs, nil
}

// SafeDelete removes the blob for digest when nothing references it.
func (s *BlobService) SafeDelete(ctx context.Context, digest string) (models.Blob, error) {
	blob, err := s.Get(ctx, digest)
	if err != nil {
		if httpStatusFromError(err) == http.StatusNotFound {
			s.metrics.ObserveBlobDelete(metrics.DeleteNotFound)
		}
		return blob, err
	}

	result, err := s.deleteByID(ctx, blob.ID)
	if err != nil {
		return blob, err
	}
	switch {
	case result.Deleted:
		return *result.Blob, nil
	case result.References > 0:
		return blob, blobReferencedError(result.References)
	default:
		s.metrics.ObserveBlobDelete(metrics.DeleteNotFound)
		return blob, notFoundCode(fmt.Errorf("blob not found"), ErrCodeBlobNotFound)
	}
}

// releaseIfUnreferenced is the opportunistic cleanup run after a credential delete.
func (s *BlobService) releaseIfUnreferenced(ctx context.Context, blobID string) (store.BlobDeleteResult, error) {
	if s == nil || strings.TrimSpace(blobID) == "" {
		return store.BlobDeleteResult{}, nil
	}
	return s.deleteByID(ctx, blobID)
}

// deleteByID runs the reference-gated row delete, then removes the object.
// The object delete is best effort and never undoes the row delete.
func (s *BlobService) deleteByID(ctx context.Context, blobID string) (store.BlobDeleteResult, error) {
	result, err := s.meta.DeleteBlobIfUnreferenced(ctx, blobID)
	if errors.Is(err, store.ErrBlobReferenced) {
		refs, countErr := s.meta.CountBlobReferences(ctx, blobID)
		if countErr != nil {
			return result, countErr
		}
		result.References = max(refs, 1)
		result.Deleted = false
		err = nil
	}
	if err != nil {
		return result, err
	}
	if !result.Deleted {
		if result.References > 0 {
			s.metrics.ObserveBlobDelete(metrics.DeleteBlocked)
			s.logger.Debug("blob delete skipped", "blob_id", blobID, "references", result.References)
		}
		return result, nil
	}

	s.metrics.ObserveBlobDelete(metrics.DeleteRemoved)
	s.removeObject(ctx, result.Blob.BlobKey)
	return result, nil
}

func (s *BlobService) removeObject(ctx context.Context, key string) bool {
	err := s.objects.Delete(ctx, key)
	switch {
	case err == nil:
		return true
	case errors.Is(err, blobstore.ErrObjectNotFound):
		s.logger.Warn("blob object already absent", "blob_key", key)
		return true
	default:
		s.logger.Warn("blob object delete failed; left for gc", "blob_key", key, "error", err)
		return false
	}
}

// GC removes unreferenced rows and orphan objects older than the configured
// minimum age. Without apply it only reports candidates.
func (s *BlobService) GC(ctx context.Context, batchSize int, apply bool) (BlobGCResult, error) {
	result := BlobGCResult{DryRun: !apply}
	if s == nil || s.meta == nil || s.objects == nil {
		return result, internalError(fmt.Errorf("blob service is not configured"))
	}
	if batchSize <= 0 {
		batchSize = s.gcBatchSize
	}
	cutoff := s.now().Add(-s.gcMinAge)

	if err := s.gcRows(ctx, cutoff, batchSize, apply, &result); err != nil {
		return result, err
	}
	if err := s.gcObjects(ctx, cutoff, apply, &result); err != nil {
		return result, err
	}

	s.metrics.AddGCRemoved("rows", result.RowsDeleted)
	s.metrics.AddGCRemoved("objects", result.ObjectsDeleted)
	s.logger.Info("blob gc finished",
		"dry_run", result.DryRun,
		"row_candidates", result.RowCandidates,
		"rows_deleted", result.RowsDeleted,
		"object_candidates", result.ObjectCandidates,
		"objects_deleted", result.ObjectsDeleted,
		"foreign_objects", result.ForeignObjects,
		"failed", result.FailedCount,
	)
	return result, nil
}

func (s *BlobService) gcRows(ctx context.Context, cutoff time.Time, batchSize int, apply bool, result *BlobGCResult) error {
	if !apply {
		blobs, err := s.meta.ListUnreferencedBlobs(ctx, cutoff, 0)
		if err != nil {
			return err
		}
		result.RowCandidates = len(blobs)
		for _, blob := range blobs {
			result.ReclaimedBytes += blob.SizeBytes
		}
		return nil
	}

	for {
		blobs, err := s.meta.ListUnreferencedBlobs(ctx, cutoff, batchSize)
		if err != nil {
			return err
		}
		if len(blobs) == 0 {
			return nil
		}
		result.RowCandidates += len(blobs)

		progressed := false
		for _, blob := range blobs {
			deleted, err := s.meta.DeleteBlobIfUnreferenced(ctx, blob.ID)
			if err != nil || !deleted.Deleted {
				if err != nil {
					s.logger.Warn("gc row delete failed", "blob_id", blob.ID, "error", err)
					result.FailedCount++
				}
				continue
			}
			progressed = true
			result.RowsDeleted++
			result.ReclaimedBytes += blob.SizeBytes
			if !s.removeObject(ctx, blob.BlobKey) {
				result.FailedCount++
			}
		}
		if !progressed {
			return nil
		}
	}
}

func (s *BlobService) gcObjects(ctx context.Context, cutoff time.Time, apply bool, result *BlobGCResult) error {
	var orphans []blobstore.ObjectInfo
	err := s.objects.Walk(ctx, func(info blobstore.ObjectInfo) error {
		if _, ok := blobstore.ParseObjectKey(info.Key); !ok {
			result.ForeignObjects++
			return nil
		}
		if !info.ModifiedAt.IsZero() && !info.ModifiedAt.Before(cutoff) {
			return nil
		}
		blob, err := s.meta.GetBlobByKey(ctx, info.Key)
		if err != nil {
			return err
		}
		if blob == nil {
			orphans = append(orphans, info)
		}
		return nil
	})
	if err != nil {
		return err
	}

	result.ObjectCandidates = len(orphans)
	for _, orphan := range orphans {
		if !apply {
			result.ReclaimedBytes += orphan.SizeBytes
			continue
		}
		if err := s.objects.Delete(ctx, orphan.Key); err != nil && !errors.Is(err, blobstore.ErrObjectNotFound) {
			s.logger.Warn("gc object delete failed", "blob_key", orphan.Key, "error", err)
			result.FailedCount++
			continue
		}
		result.ObjectsDeleted++
		result.ReclaimedBytes += orphan.SizeBytes
	}
	return nil
}

func (s *BlobService) validateMediaType(mediaType string) error {
	if mediaType == "" {
		return badRequestCode(fmt.Errorf("media_type is required"), ErrCodeMissingRequired)
	}
	if len(s.allowed) == 0 {
		return nil
	}
	if _, ok := s.allowed[mediaType]; ok {
		return nil
	}
	return badRequestCode(fmt.Errorf("media_type %q is not allowed", mediaType), ErrCodeUnsupportedMediaType)
}

func blobReferencedError(refs int) error {
	err := apiError{
		status:  http.StatusBadRequest,
		code:    "blob_referenced",
		errCode: ErrCodeBlobReferenced,
		err:     fmt.Errorf("blob has %d reference(s)", refs),
	}
	return withDetails(err, map[string]any{"references": refs})
}

func duplicateBlobError(blob models.Blob) error {
	err := apiError{
		status:  http.StatusBadRequest,
		code:    "duplicate_blob",
		errCode: ErrCodeDuplicateBlob,
		err:     fmt.Errorf("blob with identical content already exists"),
	}
	return withDetails(err, map[string]any{"sha256": blob.SHA256})
}
