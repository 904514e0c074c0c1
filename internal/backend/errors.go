package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// Codes for failures that carry no HTTP status. They share the numbering
// space of HTTP statuses so a single code identifies any error display.
const (
	CodeNoResponse    = 1000
	CodeRequestFailed = 1001
)

// Kind classifies a backend failure.
type Kind int

const (
	// KindNoResponse: the request was sent but no response arrived.
	KindNoResponse Kind = iota + 1
	// KindRequestFailed: the request could not be built or sent.
	KindRequestFailed
	// KindHTTPStatus: the server answered with a non-success status.
	KindHTTPStatus
)

func (k Kind) String() string {
	switch k {
	case KindNoResponse:
		return "no_response"
	case KindRequestFailed:
		return "request_failed"
	case KindHTTPStatus:
		return "http_status"
	default:
		return "unknown"
	}
}

// Error is the error taxonomy shared by every remote call.
type Error struct {
	Kind        Kind
	Status      int
	Description string
	Err         error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindHTTPStatus:
		if e.Description != "" {
			return fmt.Sprintf("backend: status %d: %s", e.Status, e.Description)
		}
		return fmt.Sprintf("backend: status %d", e.Status)
	default:
		if e.Err != nil {
			return fmt.Sprintf("backend: %s: %v", e.Kind, e.Err)
		}
		return "backend: " + e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code returns the numeric code used to look up error messages.
func (e *Error) Code() int {
	switch e.Kind {
	case KindNoResponse:
		return CodeNoResponse
	case KindRequestFailed:
		return CodeRequestFailed
	default:
		return e.Status
	}
}

// StatusError builds an HTTP status error.
func StatusError(status int, description string) *Error {
	return &Error{Kind: KindHTTPStatus, Status: status, Description: description}
}

// NotFound is the error shown when a route names an unknown record type.
func NotFound() *Error {
	return StatusError(http.StatusNotFound, "")
}

// AsError extracts a *Error from err. Errors of any other type are
// classified as KindRequestFailed.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		return be
	}
	return &Error{Kind: KindRequestFailed, Err: err}
}

func hasStatus(err error, status int) bool {
	var be *Error
	return errors.As(err, &be) && be.Kind == KindHTTPStatus && be.Status == status
}

// IsUnauthorized reports whether err is a 401 response.
func IsUnauthorized(err error) bool { return hasStatus(err, http.StatusUnauthorized) }

// IsForbidden reports whether err is a 403 response.
func IsForbidden(err error) bool { return hasStatus(err, http.StatusForbidden) }
