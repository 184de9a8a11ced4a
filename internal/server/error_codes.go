package server

const (
	// Validation (1xxx)
	ErrCodeInvalidArgument        = 1000
	ErrCodeInvalidJSON            = 1001
	ErrCodeRequestTooLarge        = 1002
	ErrCodeInvalidQuery           = 1003
	ErrCodeInvalidID              = 1004
	ErrCodeInvalidState           = 1005
	ErrCodeMissingJustification   = 1006
	ErrCodeBlobTooLarge           = 1007
	ErrCodeUnsupportedMediaType   = 1008
	ErrCodeMissingRequired        = 1009
	ErrCodeInvalidDateRange       = 1010
	ErrCodeInvalidCredentialType  = 1011
	ErrCodeInvalidDigest          = 1012
	ErrCodeInvalidReference       = 1013
	ErrCodeDuplicateBlob          = 1014
	ErrCodeBlobReferenced         = 1015
	ErrCodeInvalidCatalog         = 1016
	ErrCodeInvalidContractFigures = 1017

	// Domain state (2xxx)
	ErrCodeBlobNotFound       = 2001
	ErrCodeCredentialNotFound = 2002
	ErrCodeContractNotFound   = 2003
	ErrCodeInstructorNotFound = 2004
	ErrCodePersonNotFound     = 2005
	ErrCodeUserNotFound       = 2006
	ErrCodeNotFound           = 2007
	ErrCodeContractOverlap    = 2101
	ErrCodeConflict           = 2102

	// Auth & limits (3xxx)
	ErrCodeUnauthorized      = 3001
	ErrCodeForbidden         = 3002
	ErrCodeResourceExhausted = 3003

	// Internal/system (4xxx)
	ErrCodeInternal       = 4001
	ErrCodeStoreFailure   = 4002
	ErrCodeBlobStorage    = 4003
	ErrCodeNotImplemented = 4005
)

func defaultErrorCodeByStatus(status int) int {
	switch status {
	case 400:
		return ErrCodeInvalidArgument
	case 401:
		return ErrCodeUnauthorized
	case 403:
		return ErrCodeForbidden
	case 404:
		return ErrCodeNotFound
	case 409:
		return ErrCodeConflict
	case 429:
		return ErrCodeResourceExhausted
	case 500:
		return ErrCodeInternal
	case 501:
		return ErrCodeNotImplemented
	default:
		return 0
	}
}
