package blobstore

import (
	"encoding/hex"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"
)

const (
	keyAlgorithmPrefix   = "sha256"
	maxKeyFilenameLength = 64
	defaultKeyFilename   = "blob"
)

// ObjectKey derives the storage key for an upload from its digest, upload time and filename.
// Re-uploading the same bytes later yields a different key, so an orphaned object never
// collides with a live one.
func ObjectKey(digest string, uploadedAt time.Time, filename string) (string, error) {
	digest = strings.ToLower(strings.TrimSpace(digest))
	if len(digest) < 4 {
		return "", fmt.Errorf("digest is required")
	}
	return fmt.Sprintf("%s/%s/%s/%s/%d-%s",
		keyAlgorithmPrefix, digest[0:2], digest[2:4], digest,
		uploadedAt.UTC().UnixNano(), SanitizeFilename(filename),
	), nil
}

// ParseObjectKey returns the digest embedded in a key produced by ObjectKey.
// Keys of any other shape report ok=false.
func ParseObjectKey(key string) (digest string, ok bool) {
	parts := strings.Split(key, "/")
	if len(parts) != 5 || parts[0] != keyAlgorithmPrefix {
		return "", false
	}
	digest = parts[3]
	if len(digest) != 64 || strings.ToLower(digest) != digest {
		return "", false
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return "", false
	}
	if parts[1] != digest[0:2] || parts[2] != digest[2:4] {
		return "", false
	}
	stamp, name, found := strings.Cut(parts[4], "-")
	if !found || name == "" || SanitizeFilename(name) != name {
		return "", false
	}
	if _, err := strconv.ParseInt(stamp, 10, 64); err != nil {
		return "", false
	}
	return digest, true
}

// SanitizeFilename reduces a client-supplied filename to a safe key segment.
func SanitizeFilename(raw string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(raw), "\\", "/"))
	if base == "." || base == "/" || base == ".." {
		base = ""
	}
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
		if b.Len() >= maxKeyFilenameLength {
			break
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return defaultKeyFilename
	}
	return out
}
