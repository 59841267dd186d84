// Package apperr defines the stable error kinds surfaced by the portal core.
// Every user-visible failure carries a kind code, a human-readable message and
// the HTTP status it maps to. The two 403 kinds are deliberately distinct:
// CodeForbiddenScope means the token lacks the declared scope, CodeForbidden
// means the scope was present but the principal is not entitled.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeValidation     = "VALIDATION"
	CodeForbiddenScope = "FORBIDDEN_SCOPE"
	CodeForbidden      = "FORBIDDEN"
	CodeNotFound       = "NOT_FOUND"
	CodeConflict       = "CONFLICT"
	CodeInternal       = "INTERNAL"
)

// PortalError is the error type crossing component boundaries.
type PortalError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *PortalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PortalError) Unwrap() error {
	return e.Err
}

func Validation(format string, args ...interface{}) *PortalError {
	return &PortalError{Code: CodeValidation, Message: fmt.Sprintf(format, args...), Status: http.StatusBadRequest}
}

// MissingScope is the 403 raised when a request carries no token, or a token
// without the scope the endpoint declares.
func MissingScope(scope string) *PortalError {
	return &PortalError{
		Code:    CodeForbiddenScope,
		Message: fmt.Sprintf("Forbidden, missing required scope '%s'", scope),
		Status:  http.StatusForbidden,
	}
}

// NotAllowed is the 403 raised when the scope was fine but the principal is
// not entitled (wrong role, wrong group, self-approval).
func NotAllowed(format string, args ...interface{}) *PortalError {
	return &PortalError{Code: CodeForbidden, Message: fmt.Sprintf(format, args...), Status: http.StatusForbidden}
}

// Denied wraps a guard deny reason verbatim. The reason is caller-supplied
// text, never a format string.
func Denied(reason string) *PortalError {
	return &PortalError{Code: CodeForbidden, Message: reason, Status: http.StatusForbidden}
}

func NotFound(format string, args ...interface{}) *PortalError {
	return &PortalError{Code: CodeNotFound, Message: fmt.Sprintf(format, args...), Status: http.StatusNotFound}
}

func Conflict(format string, args ...interface{}) *PortalError {
	return &PortalError{Code: CodeConflict, Message: fmt.Sprintf(format, args...), Status: http.StatusConflict}
}

func Internal(message string, err error) *PortalError {
	return &PortalError{Code: CodeInternal, Message: message, Status: http.StatusInternalServerError, Err: err}
}

// Status resolves the HTTP status of any error, defaulting to 500.
func Status(err error) int {
	var pe *PortalError
	if errors.As(err, &pe) {
		return pe.Status
	}
	return http.StatusInternalServerError
}

// As unwraps err to a PortalError if possible.
func As(err error) (*PortalError, bool) {
	var pe *PortalError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsKind reports whether err is a PortalError with the given code.
func IsKind(err error, code string) bool {
	pe, ok := As(err)
	return ok && pe.Code == code
}
