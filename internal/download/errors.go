package download

import (
	"errors"
	"fmt"
)

// ErrDuplicateTask is returned when a download is requested for an identifier
// that already has a live, non-terminal record.
var ErrDuplicateTask = errors.New("download already in progress")

// ErrTaskNotFound is returned when an identifier is unknown or its record has
// already been swept. Callers treat it as "possibly completed and evicted".
var ErrTaskNotFound = errors.New("download task not found")

// AuthError represents a credential rejection by the external API.
// It is surfaced to the operator as-is and never retried by the worker.
type AuthError struct {
	Operation string // The operation that required authentication
	Code      string // API error code, if the API reported one
	Message   string // Error message from the API
	Err       error  // Underlying error, if any
}

func (e *AuthError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("authentication failed during %s: %s (code: %s)", e.Operation, e.Message, e.Code)
	}

	return fmt.Sprintf("authentication failed during %s: %s", e.Operation, e.Message)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// NetworkError represents transient connectivity failures talking to the
// external API, including 5xx responses and transport-level errors.
type NetworkError struct {
	Operation  string // The operation that failed (e.g., "search", "file_link")
	StatusCode int    // HTTP status code, if applicable (0 for non-HTTP errors)
	APIMessage string // Error message from the API or network layer
	Err        error  // Underlying error, if any
}

func (e *NetworkError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("network error during %s (HTTP %d): %s", e.Operation, e.StatusCode, e.APIMessage)
	}

	return fmt.Sprintf("network error during %s: %s", e.Operation, e.APIMessage)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// UnavailableError represents a file the external system cannot serve right
// now. Classified distinctly so users are told to retry later or pick another
// file rather than being shown a raw failure.
type UnavailableError struct {
	Ident   string // File identifier that is not servable
	Message string // Message from the API, if any
	Err     error  // Underlying error, if any
}

func (e *UnavailableError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("file %s is temporarily unavailable: %s", e.Ident, e.Message)
	}

	return fmt.Sprintf("file %s is temporarily unavailable", e.Ident)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// UserMessage converts an internal error into the classified, human-readable
// message stored on a failed record. Raw internal errors are never exposed.
func UserMessage(err error) string {
	var unavailErr *UnavailableError
	if errors.As(err, &unavailErr) {
		return "File is temporarily unavailable. Try again later or pick another file."
	}

	var authErr *AuthError
	if errors.As(err, &authErr) {
		return "Not logged in to the file-sharing service. Check the configured credentials."
	}

	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return "Network error while talking to the file-sharing service."
	}

	return "Download failed. See server logs for details."
}
