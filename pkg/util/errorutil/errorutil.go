package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

const (
	CodeValidation               = "VALIDATION_FAILED"
	CodeNotFound                 = "NOT_FOUND"
	CodeUnauthorized             = "UNAUTHORIZED"
	CodeNotAuthorized            = "NOT_AUTHORIZED"
	CodeNotAuthorizedForFacility = "NOT_AUTHORIZED_FOR_FACILITY"
	CodeInvalidTransition        = "INVALID_TRANSITION"
	CodeConflict                 = "CONFLICT"
	CodeInternal                 = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

// NewUnauthorized is a transport-level failure: no usable identity.
func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

// NewNotAuthorized reports an actor lacking the role or identity an action needs.
func NewNotAuthorized(message string) error {
	return NewDomainError(CodeNotAuthorized, message, http.StatusForbidden, nil)
}

// NewNotAuthorizedForFacility reports a manager with no headed facility.
func NewNotAuthorizedForFacility(actorID string) error {
	return NewDomainError(CodeNotAuthorizedForFacility, "actor does not head any facility", http.StatusForbidden,
		map[string]any{"actorId": actorID})
}

// NewInvalidTransition carries the current status and the attempted action so callers can decide on retry.
func NewInvalidTransition(requestID, action, status, reason string) error {
	return NewDomainError(CodeInvalidTransition, reason, http.StatusConflict, map[string]any{
		"requestId": requestID,
		"action":    action,
		"status":    status,
	})
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err is a DomainError with the given code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == code
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return NewNotFound("resource", nil).(*DomainError)
	}
	return NewInternalError(err).(*DomainError)
}

func MapError(err error) error {
	return ToDomainError(err)
}
