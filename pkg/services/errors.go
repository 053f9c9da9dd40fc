// Package services implements the operations exposed by the API and CLI:
// flow management and the run control surface. Services hold the business
// rules; transports translate their errors to protocol responses.
package services

import (
	"errors"
	"fmt"

	"github.com/replaykit/replaykit/pkg/models"
	"github.com/replaykit/replaykit/pkg/persistence"
)

var (
	// Validation errors (400 Bad Request).
	ErrInvalidRequest = errors.New("invalid request")
	ErrFlowNil        = errors.New("flow cannot be nil")
	ErrFlowInvalid    = errors.New("flow failed validation")
)

// ServiceError wraps service-level errors with operation context.
type ServiceError struct {
	Op      string
	Code    string
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error should map to HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrFlowNil) ||
		errors.Is(err, ErrFlowInvalid)
}

// IsConflictError checks if an error is a run lifecycle conflict that should
// map to HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, models.ErrRunTerminal) ||
		errors.Is(err, models.ErrRunNotPaused)
}

// IsNotFoundError checks if an error should map to HTTP 404.
func IsNotFoundError(err error) bool {
	return persistence.IsFlowNotFound(err) ||
		persistence.IsRunNotFound(err)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
