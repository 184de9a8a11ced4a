package server

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"credvault/internal/models"
)

const maxReferenceIDLength = 64

var (
	credentialIDPattern = map[models.CredentialKind]string{
		models.KindDocument: "dc-",
		models.KindTitle:    "tt-",
	}
	referenceIDAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789._-"
)

func validateGeneratedID(prefix, id string) bool {
	if !strings.HasPrefix(id, prefix) || len(id) != len(prefix)+6 {
		return false
	}
	for _, r := range id[len(prefix):] {
		if (r < '0' || r > '9') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}

func validateCredentialID(kind models.CredentialKind, id string) bool {
	prefix, ok := credentialIDPattern[kind]
	return ok && validateGeneratedID(prefix, id)
}

// normalizeReferenceID validates ids of catalog entities, which are chosen by the importer.
func normalizeReferenceID(field, raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", badRequestCode(fmt.Errorf("%s is required", field), ErrCodeMissingRequired)
	}
	if len(id) > maxReferenceIDLength {
		return "", badRequestCode(fmt.Errorf("%s is too long", field), ErrCodeInvalidID)
	}
	for _, r := range id {
		if !strings.ContainsRune(referenceIDAlphabet, r) {
			return "", badRequestCode(fmt.Errorf("invalid %s", field), ErrCodeInvalidID)
		}
	}
	return id, nil
}

func normalizeDigest(raw string) (string, error) {
	digest := models.NormalizeDigest(raw)
	if !models.IsValidDigest(digest) {
		return "", badRequestCode(fmt.Errorf("invalid digest"), ErrCodeInvalidDigest)
	}
	return digest, nil
}

func normalizePublicID(raw string) (string, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", badRequestCode(fmt.Errorf("invalid contract id"), ErrCodeInvalidID)
	}
	return parsed.String(), nil
}

func normalizeMediaType(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	parsed, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return "", badRequestCode(fmt.Errorf("invalid media_type"), ErrCodeUnsupportedMediaType)
	}
	return strings.ToLower(strings.TrimSpace(parsed)), nil
}

func classifyDecisionError(err error) error {
	switch {
	case errors.Is(err, models.ErrJustificationRequired):
		return badRequestCode(err, ErrCodeMissingJustification)
	case errors.Is(err, models.ErrPendingNotDecision), errors.Is(err, models.ErrInvalidState):
		return badRequestCode(err, ErrCodeInvalidState)
	default:
		return badRequest(err)
	}
}

func requireDigestPath(r *http.Request) (string, error) {
	return normalizeDigest(r.PathValue("digest"))
}

func requireCredentialPath(r *http.Request, kind models.CredentialKind) (string, error) {
	id := strings.TrimSpace(r.PathValue("id"))
	if !validateCredentialID(kind, id) {
		return "", badRequestCode(fmt.Errorf("invalid %s id", kind), ErrCodeInvalidID)
	}
	return id, nil
}
