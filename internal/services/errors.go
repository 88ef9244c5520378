package services

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeTokenExpired     = "token_expired"
	CodeTokenInvalid     = "token_invalid"
	CodeNotFound         = "not_found"
	CodeAlreadyActive    = "already_active"
	CodePermissionDenied = "permission_denied"
	CodeValidation       = "validation"
	CodeConflict         = "conflict"
	CodeUnauthorized     = "unauthorized"
	CodeBadRequest       = "bad_request"
)

// ServiceError is an error that maps onto an HTTP response. Fields carries
// per-field messages for validation failures.
type ServiceError struct {
	Status  int
	Code    string
	Message string
	Fields  map[string]string
}

func (e ServiceError) Error() string {
	return e.Message
}

// Is matches on Code so callers can compare against the package sentinels.
func (e ServiceError) Is(target error) bool {
	var other ServiceError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

var (
	ErrTokenExpired     = ServiceError{Status: http.StatusBadRequest, Code: CodeTokenExpired, Message: "Token expired"}
	ErrTokenInvalid     = ServiceError{Status: http.StatusBadRequest, Code: CodeTokenInvalid, Message: "Token invalid"}
	ErrAlreadyActive    = ServiceError{Status: http.StatusBadRequest, Code: CodeAlreadyActive, Message: "Account already activated"}
	ErrPermissionDenied = ServiceError{Status: http.StatusForbidden, Code: CodePermissionDenied, Message: "Not allowed"}
	ErrAuthFailed       = ServiceError{Status: http.StatusUnauthorized, Code: CodeUnauthorized, Message: "Authentication failed"}
)

func ErrNotFound(msg string) error {
	return ServiceError{Status: http.StatusNotFound, Code: CodeNotFound, Message: msg}
}

func ErrBadRequest(msg string) error {
	return ServiceError{Status: http.StatusBadRequest, Code: CodeBadRequest, Message: msg}
}

func ErrForbidden(msg string) error {
	return ServiceError{Status: http.StatusForbidden, Code: CodePermissionDenied, Message: msg}
}

func ErrUnauthorized(msg string) error {
	return ServiceError{Status: http.StatusUnauthorized, Code: CodeUnauthorized, Message: msg}
}

func ErrConflict(msg string) error {
	return ServiceError{Status: http.StatusConflict, Code: CodeConflict, Message: msg}
}

// ErrValidation reports form errors keyed by field name.
func ErrValidation(fields map[string]string) error {
	return ServiceError{Status: http.StatusBadRequest, Code: CodeValidation, Message: "Validation failed", Fields: fields}
}

func fieldError(field, msg string) error {
	return ErrValidation(map[string]string{field: msg})
}

func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// AsServiceError reports whether err carries a ServiceError.
func AsServiceError(err error) (ServiceError, bool) {
	var serr ServiceError
	if errors.As(err, &serr) {
		return serr, true
	}
	return ServiceError{}, false
}
