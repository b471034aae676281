package auth

import (
	"errors"
	"fmt"
)

// Credential-state errors. Both instruct the caller to re-run the interactive
// setup flow rather than retry.
var (
	// ErrNotAuthenticated means the stored credential has no access token at all.
	ErrNotAuthenticated = errors.New("copilotgate auth: not authenticated")
	// ErrReauthenticationRequired means the access token is expired and no
	// refresh token is available to renew it.
	ErrReauthenticationRequired = errors.New("copilotgate auth: reauthentication required")
)

// Terminal device-flow outcomes. None of these are retried automatically.
var (
	ErrDeviceCodeExpired    = errors.New("copilotgate auth: device code expired")
	ErrAuthorizationDenied  = errors.New("copilotgate auth: authorization denied by user")
	ErrAuthorizationTimeout = errors.New("copilotgate auth: timed out waiting for authorization")
)

// NetworkError wraps a transport-level failure talking to the authorization
// or resource server.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("copilotgate auth: %s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// AuthServerError is a structured error reported by the authorization server,
// carrying the server's own error code and description.
type AuthServerError struct {
	Code        string
	Description string
	Status      int
}

func (e *AuthServerError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("copilotgate auth: server error %q: %s", e.Code, e.Description)
	}
	if e.Code != "" {
		return fmt.Sprintf("copilotgate auth: server error %q", e.Code)
	}
	return fmt.Sprintf("copilotgate auth: server error: status %d", e.Status)
}

// PersistenceError wraps a credential store read or write failure. Middleware
// logs it and proceeds with the in-memory token; it is never fatal to an
// in-flight request.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("copilotgate auth: credential store %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
