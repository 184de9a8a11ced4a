package blobstore

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrObjectNotFound is returned by Open when no object exists at a key.
var ErrObjectNotFound = errors.New("blob object not found")

// BlobPutResult describes one persisted blob payload.
type BlobPutResult struct {
	SHA256    string
	SizeBytes int64
	BlobKey   string
}

// ObjectInfo describes one stored object found by Walk.
type ObjectInfo struct {
	Key        string
	SizeBytes  int64
	ModifiedAt time.Time
}

// BlobStore is the byte-storage abstraction behind the blob service.
// Keys are chosen by the caller; see ObjectKey.
type BlobStore interface {
	Backend() string
	Put(ctx context.Context, key string, r io.Reader, mediaType string) (BlobPutResult, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Walk(ctx context.Context, fn func(ObjectInfo) error) error
}
