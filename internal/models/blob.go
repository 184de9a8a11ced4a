package models

import (
	"regexp"
	"strings"
	"time"
)

var sha256HexPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Blob is an immutable uploaded file identified by the SHA-256 digest of its bytes.
type Blob struct {
	ID             string    `json:"id"`
	SHA256         string    `json:"sha256"`
	SizeBytes      int64     `json:"size_bytes"`
	MediaType      string    `json:"media_type"`
	Filename       string    `json:"filename,omitempty"`
	StorageBackend string    `json:"storage_backend"`
	BlobKey        string    `json:"blob_key"`
	UploadedBy     string    `json:"uploaded_by,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// NormalizeDigest lowercases and trims a hex digest.
func NormalizeDigest(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// IsValidDigest reports whether value is a canonical lowercase SHA-256 hex digest.
func IsValidDigest(value string) bool {
	return sha256HexPattern.MatchString(value)
}
