package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const helloDigest = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

func TestLocalCASPutOpenDelete(t *testing.T) {
	cas, err := NewLocalCAS(t.TempDir())
	if err != nil {
		t.Fatalf("new local cas: %v", err)
	}
	ctx := context.Background()

	key, err := ObjectKey(helloDigest, time.Unix(1700000000, 0), "hello.txt")
	if err != nil {
		t.Fatalf("object key: %v", err)
	}

	put, err := cas.Put(ctx, key, bytes.NewBufferString("hello"), "text/plain")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if put.SHA256 != helloDigest || put.SizeBytes != 5 || put.BlobKey != key {
		t.Fatalf("unexpected put result: %#v", put)
	}

	rc, err := cas.Open(ctx, key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	data, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("expected hello, got %q", string(data))
	}

	if err := cas.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := cas.Delete(ctx, key); err != nil {
		t.Fatalf("delete missing should be noop: %v", err)
	}
	if _, err := cas.Open(ctx, key); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound after delete, got %v", err)
	}
}

func TestLocalCASRejectsEscapingKeys(t *testing.T) {
	cas, err := NewLocalCAS(t.TempDir())
	if err != nil {
		t.Fatalf("new local cas: %v", err)
	}
	for _, key := range []string{"", "/etc/passwd", "../outside", "a/../../outside", "tmp/put-1"} {
		if _, err := cas.Put(context.Background(), key, bytes.NewBufferString("x"), ""); err == nil {
			t.Fatalf("expected key %q to be rejected", key)
		}
	}
}

func TestLocalCASWalkSkipsTempFiles(t *testing.T) {
	root := t.TempDir()
	cas, err := NewLocalCAS(root)
	if err != nil {
		t.Fatalf("new local cas: %v", err)
	}
	ctx := context.Background()

	key, _ := ObjectKey(helloDigest, time.Unix(1700000000, 0), "a.pdf")
	if _, err := cas.Put(ctx, key, bytes.NewBufferString("hello"), ""); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, localTmpDir, "put-stale"), []byte("partial"), 0o644); err != nil {
		t.Fatalf("write temp: %v", err)
	}

	var seen []ObjectInfo
	if err := cas.Walk(ctx, func(info ObjectInfo) error {
		seen = append(seen, info)
		return nil
	}); err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(seen) != 1 {
		t.Fatalf("expected one object, got %+v", seen)
	}
	if seen[0].Key != key || seen[0].SizeBytes != 5 || seen[0].ModifiedAt.IsZero() {
		t.Fatalf("unexpected object info: %+v", seen[0])
	}
}

func TestLocalCASPutHonorsCanceledContext(t *testing.T) {
	cas, err := NewLocalCAS(t.TempDir())
	if err != nil {
		t.Fatalf("new local cas: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := cas.Put(ctx, "sha256/aa/bb/x/1-a", bytes.NewBufferString("x"), ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}
