package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a ledger domain error with a structured error code.
// Codes have the form LS-<AREA>-<NNNN>.
type DomainError struct {
	Code    string // Error code (e.g., "LS-FETCH-5020")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithDetailsf is WithDetails with a format string.
func (e *DomainError) WithDetailsf(format string, args ...any) *DomainError {
	return e.WithDetails(fmt.Sprintf(format, args...))
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Codec Errors (CODEC)
// ============================================================================

var (
	// ErrInvalidLength indicates a fixed-size field was given the wrong number of bytes.
	ErrInvalidLength = NewDomainError("LS-CODEC-4000", "invalid field length")

	// ErrInvalidPayload indicates a dense payload string is not valid base64.
	ErrInvalidPayload = NewDomainError("LS-CODEC-4001", "invalid dense payload")

	// ErrDecodeFailed indicates a record could not be decoded.
	ErrDecodeFailed = NewDomainError("LS-CODEC-4002", "decode failed")
)

// ============================================================================
// Pull Errors (PULL)
// ============================================================================

var (
	// ErrCheckpointUnavailable indicates a round asked to continue without
	// an authoritative next checkpoint.
	ErrCheckpointUnavailable = NewDomainError("LS-PULL-4220", "next checkpoint unavailable")

	// ErrCheckpointRegressed indicates a next checkpoint moved backwards.
	ErrCheckpointRegressed = NewDomainError("LS-PULL-4221", "checkpoint regressed")

	// ErrCheckpointStalled indicates a round asked to continue from the
	// checkpoint it started at.
	ErrCheckpointStalled = NewDomainError("LS-PULL-4222", "checkpoint stalled")

	// ErrRemoteProcedureFailed indicates the diff-pull call failed.
	ErrRemoteProcedureFailed = NewDomainError("LS-PULL-5020", "remote procedure failed")

	// ErrSessionClosed indicates a pull session has already reached a terminal state.
	ErrSessionClosed = NewDomainError("LS-PULL-4090", "pull session closed")
)

// ============================================================================
// Fetch Errors (FETCH)
// ============================================================================

var (
	// ErrBatchLookupFailed indicates the storage query failed for a chunk.
	ErrBatchLookupFailed = NewDomainError("LS-FETCH-5020", "batch lookup failed")

	// ErrInvalidBatchSize indicates a non-positive batch size.
	ErrInvalidBatchSize = NewDomainError("LS-FETCH-4000", "invalid batch size")
)

// ============================================================================
// Key Errors (KEYS)
// ============================================================================

var (
	// ErrUnknownKeyGroup indicates a key group name outside the known set.
	ErrUnknownKeyGroup = NewDomainError("LS-KEYS-4000", "unknown key group")

	// ErrInvalidStorageKey indicates a storage key is not valid 0x-hex.
	ErrInvalidStorageKey = NewDomainError("LS-KEYS-4001", "invalid storage key")

	// ErrUnknownHasher indicates an unsupported storage map hasher.
	ErrUnknownHasher = NewDomainError("LS-KEYS-4002", "unknown storage hasher")

	// ErrKeyListing indicates the key listing could not be read.
	ErrKeyListing = NewDomainError("LS-KEYS-4003", "invalid key listing")
)
