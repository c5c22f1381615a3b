// Package autherr defines the failure taxonomy of the OIDC client: transport
// failures, protocol violations, expired sessions and missing authentication.
package autherr

import (
	"errors"
	"fmt"
)

var (
	ErrNotAuthenticated    = errors.New("not authenticated")
	ErrNoRefreshToken      = errors.New("no refresh token")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	ErrMissingCode         = errors.New("missing authorization code")
	ErrInvalidState        = errors.New("invalid state parameter - possible CSRF attack")
	ErrNoFlowSession       = errors.New("no authorization in progress")
	ErrIDTokenInvalid      = errors.New("id token invalid")
)

// TransportError is a failed HTTP exchange with the identity provider: a
// network error, a timeout, or a non-2xx response.
type TransportError struct {
	Op          string // e.g. "token exchange", "refresh"
	StatusCode  int    // 0 when no response was received
	Code        string // OAuth error code from the response body, if any
	Description string
	Err         error
}

func (e *TransportError) Error() string {
	switch {
	case e.Code != "" && e.Description != "":
		return fmt.Sprintf("%s failed: %s - %s (status %d)", e.Op, e.Code, e.Description, e.StatusCode)
	case e.Code != "":
		return fmt.Sprintf("%s failed: %s (status %d)", e.Op, e.Code, e.StatusCode)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s failed: status %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	default:
		return e.Op + " failed"
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// NoResponse reports whether the provider never answered, i.e. the failure
// happened below HTTP.
func (e *TransportError) NoResponse() bool { return e.StatusCode == 0 }

// ProtocolError is a callback or token that violates the authorization
// protocol. Code and Description carry a provider-sent error; otherwise
// Reason names the violation.
type ProtocolError struct {
	Code        string
	Description string
	Reason      error
}

func (e *ProtocolError) Error() string {
	if e.Code != "" {
		desc := e.Description
		if desc == "" {
			desc = "unknown error"
		}
		return fmt.Sprintf("authorization error: %s - %s", e.Code, desc)
	}
	if e.Reason != nil {
		return e.Reason.Error()
	}
	return "authorization protocol error"
}

func (e *ProtocolError) Unwrap() error { return e.Reason }

// SessionExpiredError means the session can no longer be renewed and the
// user has to log in again.
type SessionExpiredError struct {
	Reason error // ErrNoRefreshToken or ErrRefreshTokenExpired
}

func (e *SessionExpiredError) Error() string {
	if e.Reason == nil {
		return "session expired"
	}
	return "session expired: " + e.Reason.Error()
}

func (e *SessionExpiredError) Unwrap() error { return e.Reason }

// NotAuthenticatedError means an operation needed a token set and none is
// stored. It matches ErrNotAuthenticated with errors.Is.
type NotAuthenticatedError struct {
	Op string
}

func (e *NotAuthenticatedError) Error() string {
	if e.Op == "" {
		return ErrNotAuthenticated.Error()
	}
	return e.Op + ": " + ErrNotAuthenticated.Error()
}

func (e *NotAuthenticatedError) Is(target error) bool { return target == ErrNotAuthenticated }

// IsReauthenticationRequired reports whether err means the stored session is
// gone and only an interactive login can recover.
func IsReauthenticationRequired(err error) bool {
	var expired *SessionExpiredError
	var notAuth *NotAuthenticatedError
	return errors.As(err, &expired) || errors.As(err, &notAuth)
}
