package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotConfigured is returned by any remote operation attempted before
// Configure. The UI surfaces it as a blocking setup prompt.
var ErrNotConfigured = errors.New("gateway not configured")

// TransportError wraps network-level failures. Always retryable on the next
// poll tick.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport failure: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ServerError represents a non-2xx response from the order backend.
type ServerError struct {
	Op         string
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: server responded %d", e.Op, e.StatusCode)
}

// Auth reports whether the failure is an authentication/authorization
// rejection, which is never retried automatically.
func (e *ServerError) Auth() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// Retryable classifies an error for the polling loop: transport failures and
// non-auth server errors may be retried on the next tick; a missing
// configuration or an auth rejection may not.
func Retryable(err error) bool {
	var transport *TransportError
	if errors.As(err, &transport) {
		return true
	}
	var server *ServerError
	if errors.As(err, &server) {
		return !server.Auth()
	}
	return false
}
