// Package apperr defines the error taxonomy shared by the index, the remote
// store adapters and the HTTP layer.
//
// Every error type wraps an optional cause, so callers can match with
// errors.As while still seeing the underlying failure through errors.Unwrap.
// HTTPStatus maps an error to the status code the handlers send; the message
// sent to clients is always generic.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// RemoteUnavailableError reports that the remote store could not be reached
// or answered with a non-2xx status.
type RemoteUnavailableError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *RemoteUnavailableError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("remote store unavailable: %s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("remote store unavailable: %s: %v", e.Op, e.Err)
}

func (e *RemoteUnavailableError) Unwrap() error { return e.Err }

// NotFoundError reports an unknown gallery or image ID.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// ValidationError reports a malformed pagination or filter parameter.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AuthError reports a missing or invalid webhook signature.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "unauthorized: " + e.Reason
}

// IndexWriteError reports a constraint violation on a single upsert. It is
// logged and the record skipped; it never aborts a batch.
type IndexWriteError struct {
	Table string
	ID    string
	Err   error
}

func (e *IndexWriteError) Error() string {
	return fmt.Sprintf("index write failed for %s %q: %v", e.Table, e.ID, e.Err)
}

func (e *IndexWriteError) Unwrap() error { return e.Err }

// InternalError wraps anything uncategorized.
type InternalError struct {
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error: %v", e.Err)
}

func (e *InternalError) Unwrap() error { return e.Err }

// NotFound is a shorthand constructor.
func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// Invalid is a shorthand constructor.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// HTTPStatus maps an error to the status code returned to clients.
func HTTPStatus(err error) int {
	var (
		notFound   *NotFoundError
		validation *ValidationError
		auth       *AuthError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &auth):
		return http.StatusUnauthorized
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &validation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the client-facing message for err. Internal detail
// is never included.
func PublicMessage(err error) string {
	switch HTTPStatus(err) {
	case http.StatusUnauthorized:
		return "Unauthorized"
	case http.StatusNotFound:
		return "Not found"
	case http.StatusBadRequest:
		var validation *ValidationError
		if errors.As(err, &validation) {
			return "Invalid parameter: " + validation.Field
		}
		return "Bad request"
	default:
		return "Internal server error"
	}
}
