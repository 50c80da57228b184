package errors

import (
	"fmt"
	"net/http"
)

// Error code constants. Logs are always in English; codes are stable for clients.

// Index error codes.
const (
	CodeIndexNotConfigured = "INDEX_NOT_CONFIGURED"
	CodeInvalidMode        = "INVALID_MODE"
	CodeIndexStale         = "INDEX_STALE"
	CodeIndexBusy          = "INDEX_BUSY"
	CodeReindexFailed      = "REINDEX_FAILED"
)

// Row error codes.
const (
	CodeRowNotFound = "ROW_NOT_FOUND"
)

// Store error codes.
const (
	CodeStoreUnavailable = "STORE_UNAVAILABLE"
)

// Admin error codes.
const (
	CodeConfirmationRequired = "CONFIRMATION_REQUIRED"
)

// Validation error codes.
const (
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeInvalidDelta     = "INVALID_DELTA"
)

// Convenience constructors using predefined codes.

// ErrIndexNotConfiguredf reports a logical index that is absent from configuration.
func ErrIndexNotConfiguredf(name string) *AppError {
	return Configuration(CodeIndexNotConfigured, fmt.Sprintf("logical index %q is not configured", name)).
		WithParams(map[string]interface{}{"index": name})
}

// ErrInvalidModef reports an unknown index mode value.
func ErrInvalidModef(value string) *AppError {
	return Configuration(CodeInvalidMode, fmt.Sprintf("invalid index mode %q", value)).
		WithParams(map[string]interface{}{"mode": value})
}

// ErrRowNotFoundf reports a missing natural id.
func ErrRowNotFoundf(index string, naturalID int64) *AppError {
	return NotFound(CodeRowNotFound, "row not found").
		WithParams(map[string]interface{}{"index": index, "natural_id": naturalID})
}

// ErrConfirmationRequiredf reports a destructive operation issued without confirmation.
func ErrConfirmationRequiredf(index string) *AppError {
	return &AppError{
		Code:       CodeConfirmationRequired,
		Message:    "destructive operation requires explicit confirmation",
		HTTPStatus: http.StatusPreconditionRequired,
		Kind:       ErrInvalidInput,
		Params:     map[string]interface{}{"index": index},
	}
}

// ErrIndexStalef reports that a synchronous reindex failed after the source
// write succeeded. The write is not rolled back.
func ErrIndexStalef(index string, naturalIDs []int64, queued bool, cause error) *AppError {
	return &AppError{
		Code:       CodeIndexStale,
		Message:    "source updated but index refresh failed",
		HTTPStatus: http.StatusAccepted,
		Kind:       ErrTransient,
		Params: map[string]interface{}{
			"index":       index,
			"natural_ids": naturalIDs,
			"queued":      queued,
		},
		Err: cause,
	}
}

// ErrIndexBusyf reports that another reindex holds the index lock.
func ErrIndexBusyf(index string) *AppError {
	return Conflict(CodeIndexBusy, "index is being reindexed").
		WithParams(map[string]interface{}{"index": index})
}
