package service

import (
	"errors"
	"fmt"

	"github.com/wso2/consent-core-service/internal/dao"
	"github.com/wso2/consent-core-service/internal/models"
)

// ConsentManagementError is the single business-level error type raised by
// the service layer. Data-layer faults are caught, the transaction rolled
// back, and the cause wrapped here; callers never see DAO error types.
type ConsentManagementError struct {
	Code    string
	Message string
	Err     error
}

func (e *ConsentManagementError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ConsentManagementError) Unwrap() error { return e.Err }

// NewPreconditionError reports invalid input, raised before any transaction
// is acquired
func NewPreconditionError(message string) *ConsentManagementError {
	return &ConsentManagementError{Code: models.ErrCodeBadRequest, Message: message}
}

// NewNotFoundError reports a missing entity
func NewNotFoundError(message string, err error) *ConsentManagementError {
	return &ConsentManagementError{Code: models.ErrCodeNotFound, Message: message, Err: err}
}

// NewConflictError reports a state that forbids the requested transition
func NewConflictError(message string) *ConsentManagementError {
	return &ConsentManagementError{Code: models.ErrCodeConflict, Message: message}
}

// NewInternalError reports an unexpected failure
func NewInternalError(message string, err error) *ConsentManagementError {
	return &ConsentManagementError{Code: models.ErrCodeInternal, Message: message, Err: err}
}

// wrapDataError converts a data-layer fault into the business-level error.
// A zero-row single-entity read becomes not-found; everything else internal.
func wrapDataError(message string, err error) *ConsentManagementError {
	var retrievalErr *dao.RetrievalError
	if errors.As(err, &retrievalErr) && retrievalErr.IsNotFound() {
		return NewNotFoundError(message, err)
	}
	return NewInternalError(message, err)
}

// IsNotFound reports whether the error is a not-found business error
func IsNotFound(err error) bool {
	var cmErr *ConsentManagementError
	return errors.As(err, &cmErr) && cmErr.Code == models.ErrCodeNotFound
}
