package download

import (
	"errors"
	"fmt"
	"testing"
)

// TestAuthError_Error verifies error message formatting
func TestAuthError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AuthError
		want string
	}{
		{
			name: "with API code",
			err: &AuthError{
				Operation: "login",
				Code:      "102",
				Message:   "invalid credentials",
			},
			want: "authentication failed during login: invalid credentials (code: 102)",
		},
		{
			name: "without API code",
			err: &AuthError{
				Operation: "file_link",
				Message:   "session expired",
			},
			want: "authentication failed during file_link: session expired",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestNetworkError_Error verifies error message formatting
func TestNetworkError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *NetworkError
		want string
	}{
		{
			name: "with HTTP status code",
			err: &NetworkError{
				Operation:  "search",
				StatusCode: 503,
				APIMessage: "service unavailable",
			},
			want: "network error during search (HTTP 503): service unavailable",
		},
		{
			name: "without HTTP status code",
			err: &NetworkError{
				Operation:  "download_stream",
				StatusCode: 0,
				APIMessage: "connection timeout",
			},
			want: "network error during download_stream: connection timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestUnavailableError_Error verifies error message formatting
func TestUnavailableError_Error(t *testing.T) {
	err := &UnavailableError{
		Ident:   "abc123",
		Message: "file is temporarily unavailable",
	}

	want := "file abc123 is temporarily unavailable: file is temporarily unavailable"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	bare := &UnavailableError{Ident: "abc123"}

	want = "file abc123 is temporarily unavailable"
	if bare.Error() != want {
		t.Errorf("Error() = %q, want %q", bare.Error(), want)
	}
}

// TestErrorUnwrapping verifies that wrapped errors remain reachable
// through errors.Is and errors.As chains.
func TestErrorUnwrapping(t *testing.T) {
	cause := errors.New("connection refused")

	var err error = &NetworkError{
		Operation:  "search",
		APIMessage: "request failed",
		Err:        cause,
	}

	if !errors.Is(err, cause) {
		t.Errorf("errors.Is should find the wrapped cause")
	}

	wrapped := fmt.Errorf("failed to resolve download link: %w", &UnavailableError{Ident: "xyz"})

	var unavailErr *UnavailableError
	if !errors.As(wrapped, &unavailErr) {
		t.Fatalf("errors.As should find *UnavailableError through fmt wrapping")
	}

	if unavailErr.Ident != "xyz" {
		t.Errorf("Ident = %q, want %q", unavailErr.Ident, "xyz")
	}
}

// TestUserMessage verifies that internal errors are classified into
// stable human-readable messages and never leaked raw.
func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "unavailable file",
			err:  fmt.Errorf("failed to resolve download link: %w", &UnavailableError{Ident: "abc"}),
			want: "File is temporarily unavailable. Try again later or pick another file.",
		},
		{
			name: "authentication failure",
			err:  &AuthError{Operation: "file_link", Message: "not logged in"},
			want: "Not logged in to the file-sharing service. Check the configured credentials.",
		},
		{
			name: "network failure",
			err:  &NetworkError{Operation: "download_stream", APIMessage: "EOF"},
			want: "Network error while talking to the file-sharing service.",
		},
		{
			name: "unclassified error",
			err:  errors.New("disk full"),
			want: "Download failed. See server logs for details.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserMessage(tt.err); got != tt.want {
				t.Errorf("UserMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}
