package client

import (
	"errors"
	"fmt"
)

var (
	// Refresh failed, session is cleared. User has to login again
	ErrSessionExpired = errors.New("session expired, please sign in again")

	// Session was closed (logout or new login) while the request was waiting for refresh
	ErrSessionClosed = errors.New("session closed")

	ErrNotAuthenticated = errors.New("not authenticated")
)

// APIError is a non-2xx response of the server
type APIError struct {
	Status  int
	Type    string
	Code    string
	Message string
	Fields  map[string]string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status %d, code %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status %d: %s", e.Status, e.Message)
}
