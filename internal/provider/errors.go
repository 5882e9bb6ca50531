package provider

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tbourn/go-session-gateway/internal/endpoints"
)

// Sentinel errors matched through (*Error).Is.
var (
	// ErrSessionNotFound means the provider does not know the session id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrUnauthorized means the provider rejected the API key.
	ErrUnauthorized = errors.New("provider rejected credentials")
	// ErrUnavailable covers 5xx answers and transport failures.
	ErrUnavailable = errors.New("provider unavailable")
)

// Error is a failed provider call. StatusCode is 0 when the request never got
// an HTTP response.
type Error struct {
	Op         endpoints.Op
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("provider %s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("provider %s: status %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider %s: status %d", e.Op, e.StatusCode)
}

func (e *Error) Unwrap() error { return e.Err }

// Is maps HTTP outcomes onto the package sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrSessionNotFound:
		return e.StatusCode == http.StatusNotFound || e.Message == "session_not_found"
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case ErrUnavailable:
		return e.StatusCode == 0 || e.StatusCode >= http.StatusInternalServerError
	}
	return false
}
