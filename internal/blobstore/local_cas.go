package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	localBackendName = "local_cas"
	localTmpDir      = "tmp"
)

// LocalCAS stores blob bytes in a local directory tree keyed by digest.
type LocalCAS struct {
	root string
}

// NewLocalCAS creates a local store rooted at root.
func NewLocalCAS(root string) (*LocalCAS, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("local cas root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(abs, localTmpDir), 0o755); err != nil {
		return nil, err
	}
	return &LocalCAS{root: abs}, nil
}

// Backend returns the storage backend name recorded on blob rows.
func (c *LocalCAS) Backend() string {
	return localBackendName
}

// Put streams bytes to a temp file while hashing, then renames into place at key.
func (c *LocalCAS) Put(ctx context.Context, key string, r io.Reader, _ string) (BlobPutResult, error) {
	var zero BlobPutResult
	if c == nil {
		return zero, fmt.Errorf("blob store is not configured")
	}
	if r == nil {
		return zero, fmt.Errorf("reader is required")
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	dst, err := c.pathFromKey(key)
	if err != nil {
		return zero, err
	}

	tmp, err := os.CreateTemp(filepath.Join(c.root, localTmpDir), "put-*")
	if err != nil {
		return zero, err
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err != nil {
		cleanup()
		return zero, err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return zero, err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return zero, err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		cleanup()
		return zero, err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		cleanup()
		return zero, err
	}

	return BlobPutResult{SHA256: hex.EncodeToString(h.Sum(nil)), SizeBytes: n, BlobKey: strings.TrimSpace(key)}, nil
}

// Open returns a reader for blob key content.
func (c *LocalCAS) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if c == nil {
		return nil, fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := c.pathFromKey(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrObjectNotFound
	}
	return f, err
}

// Delete removes a blob object. Missing files are ignored.
func (c *LocalCAS) Delete(ctx context.Context, key string) error {
	if c == nil {
		return fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := c.pathFromKey(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Walk visits every stored object outside the temp directory.
func (c *LocalCAS) Walk(ctx context.Context, fn func(ObjectInfo) error) error {
	if c == nil {
		return fmt.Errorf("blob store is not configured")
	}
	return filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path == filepath.Join(c.root, localTmpDir) {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(c.root, path)
		if err != nil {
			return err
		}
		return fn(ObjectInfo{Key: filepath.ToSlash(rel), SizeBytes: info.Size(), ModifiedAt: info.ModTime().UTC()})
	})
}

func (c *LocalCAS) pathFromKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("blob key is required")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("blob key must be relative")
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || strings.Contains(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid blob key")
	}
	if clean == localTmpDir || strings.HasPrefix(clean, localTmpDir+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid blob key")
	}
	return filepath.Join(c.root, clean), nil
}

var _ BlobStore = (*LocalCAS)(nil)
