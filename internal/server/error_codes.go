package server

const (
	// Validation (1xxx)
	ErrCodeInvalidArgument      = 1000
	ErrCodeMissingFile          = 1001
	ErrCodeUnsupportedMediaType = 1002
	ErrCodeFileTooLarge         = 1003
	ErrCodeUnexpectedField      = 1004
	ErrCodeInvalidName          = 1005
	ErrCodeInvalidMultipart     = 1006

	// Lookup (2xxx)
	ErrCodeRouteNotFound    = 2001
	ErrCodeBlobNotFound     = 2002
	ErrCodeMethodNotAllowed = 2003

	// Limits (3xxx)
	ErrCodeRateLimited = 3003

	// Internal/system (4xxx)
	ErrCodeInternal           = 4001
	ErrCodeStorageFailure     = 4002
	ErrCodePersistenceFailure = 4003
	ErrCodeListFailed         = 4004
)

func defaultErrorCodeByStatus(status int) int {
	switch status {
	case 400:
		return ErrCodeInvalidArgument
	case 404:
		return ErrCodeRouteNotFound
	case 405:
		return ErrCodeMethodNotAllowed
	case 429:
		return ErrCodeRateLimited
	case 500:
		return ErrCodeInternal
	default:
		return 0
	}
}
