package store

import (
	"errors"
	"strings"
)

var (
	// ErrDuplicateDigest reports that a blob with the same SHA-256 is already recorded.
	ErrDuplicateDigest = errors.New("blob digest already exists")
	// ErrContractOverlap reports an interval collision with an existing contract.
	ErrContractOverlap = errors.New("contract overlaps an existing contract")
	// ErrBlobReferenced reports a blob delete blocked by credential references.
	ErrBlobReferenced = errors.New("blob is referenced")
	// ErrUsernameTaken reports a duplicate username.
	ErrUsernameTaken = errors.New("username already exists")
)

func isSQLiteUnique(err error, target string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed: "+target)
}

func isSQLiteForeignKey(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
