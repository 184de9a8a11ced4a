package store

import (
	"crypto/rand"
	"fmt"

	"credvault/internal/models"
)

const (
	base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	idHashLength   = 6
	idMaxAttempts  = 20
)

// GenerateID returns a new prefixed base36 ID.
// It retries on collisions using the provided exists function.
func GenerateID(prefix string, exists func(string) (bool, error)) (string, error) {
	if prefix == "" {
		return "", fmt.Errorf("id prefix is required")
	}

	for i := 0; i < idMaxAttempts; i++ {
		hash, err := randomBase36(idHashLength)
		if err != nil {
			return "", err
		}
		id := fmt.Sprintf("%s-%s", prefix, hash)
		if exists == nil {
			return id, nil
		}
		ok, err := exists(id)
		if err != nil {
			return "", err
		}
		if !ok {
			return id, nil
		}
	}

	return "", fmt.Errorf("unable to generate unique id")
}

// GenerateBlobID returns a new blob id using the bl- prefix.
func GenerateBlobID(exists func(string) (bool, error)) (string, error) {
	return GenerateID("bl", exists)
}

// GenerateCredentialID returns a new record id: dc- for documents, tt- for titles.
func GenerateCredentialID(kind models.CredentialKind, exists func(string) (bool, error)) (string, error) {
	return GenerateID(CredentialIDPrefix(kind), exists)
}

// CredentialIDPrefix returns the id prefix for a credential kind.
func CredentialIDPrefix(kind models.CredentialKind) string {
	if kind == models.KindTitle {
		return "tt"
	}
	return "dc"
}

func randomBase36(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	out := make([]byte, length)
	for i := 0; i < length; i++ {
		out[i] = base36Alphabet[int(b[i])%len(base36Alphabet)]
	}
	return string(out), nil
}
