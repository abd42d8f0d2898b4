package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business domain error with a structured error code.
// Codes have the form SS-<GROUP>-<NNNN>. The first three digits of the
// numeric part are the HTTP status the error maps to.
type DomainError struct {
	Code    string // Error code (e.g., "SS-SESS-4010")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
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
			return true // Only check if it's a DomainError
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

// Reason returns the client-facing reason of err.
// Backend query errors carry the backend message in Details, which is the
// reason shown to clients verbatim.
func Reason(err error) string {
	var de *DomainError
	if !errors.As(err, &de) {
		return ErrInternalServer.Message
	}
	switch {
	case de.Details == "":
		return de.Message
	case de.Code == ErrBackendQuery.Code:
		return de.Details
	case de.Code == ErrInvalidArgument.Code, de.Code == ErrMissingArgument.Code:
		return de.Message + ": " + de.Details
	}
	return de.Message
}

// ============================================================================
// Session Errors (SESS)
// ============================================================================

var (
	// ErrAuthentication indicates the request carried no token or an unknown one.
	ErrAuthentication = NewDomainError("SS-SESS-4010", "Session error. No valid session token")

	// ErrAuthorization indicates the token is bound to a different res_id.
	ErrAuthorization = NewDomainError("SS-SESS-4030", "Session error. User does not have access to res_id")

	// ErrSessionNotFound indicates the session record does not exist.
	ErrSessionNotFound = NewDomainError("SS-SESS-4040", "session not found")

	// ErrSessionConflict indicates a session for the token hash already exists.
	ErrSessionConflict = NewDomainError("SS-SESS-4090", "session already exists")

	// ErrSessionVersionConflict indicates an optimistic lock conflict.
	ErrSessionVersionConflict = NewDomainError("SS-SESS-4091", "version conflict, please retry")

	// ErrTokenMalformed indicates the token format is invalid.
	ErrTokenMalformed = NewDomainError("SS-SESS-4000", "malformed token")
)

// ============================================================================
// Namespace Errors (NSPC)
// ============================================================================

var (
	// ErrNamespaceNotFound indicates no namespace record exists for the res_id.
	ErrNamespaceNotFound = NewDomainError("SS-NSPC-4040", "namespace not found")

	// ErrNamespaceConflict indicates the namespace already exists.
	ErrNamespaceConflict = NewDomainError("SS-NSPC-4090", "namespace already exists")

	// ErrNamespaceVersionConflict indicates an optimistic lock conflict.
	ErrNamespaceVersionConflict = NewDomainError("SS-NSPC-4091", "version conflict, please retry")
)

// ============================================================================
// Limit Errors (QUOT, RATE)
// ============================================================================

var (
	// ErrQuotaExceeded indicates a write would push the namespace over its byte budget.
	ErrQuotaExceeded = NewDomainError("SS-QUOT-4031", "Collection size exceeded")

	// ErrRateLimited indicates the session exhausted its request quota for the window.
	ErrRateLimited = NewDomainError("SS-RATE-4290", "Rate limit exceeded")
)

// ============================================================================
// Backend Errors (BACK)
// ============================================================================

var (
	// ErrBackendQuery indicates the backend rejected the request.
	// Details holds the backend message.
	ErrBackendQuery = NewDomainError("SS-BACK-4000", "backend query error")

	// ErrCollectionNotFound indicates the collection does not exist.
	ErrCollectionNotFound = NewDomainError("SS-BACK-4040", "collection not found")

	// ErrBackendUnavailable indicates the backend could not be reached.
	ErrBackendUnavailable = NewDomainError("SS-BACK-5030", "Backend unavailable")
)

// ============================================================================
// System Errors (SYS)
// ============================================================================

var (
	// ErrInternalServer indicates an internal server error.
	ErrInternalServer = NewDomainError("SS-SYS-5000", "Internal server error")

	// ErrBadRequest indicates a malformed request.
	ErrBadRequest = NewDomainError("SS-SYS-4000", "bad request")
)

// ============================================================================
// Argument Errors (ARG)
// ============================================================================

var (
	// ErrInvalidArgument indicates an invalid argument.
	ErrInvalidArgument = NewDomainError("SS-ARG-4001", "invalid argument")

	// ErrMissingArgument indicates a required argument is missing.
	ErrMissingArgument = NewDomainError("SS-ARG-4002", "missing required argument")
)
