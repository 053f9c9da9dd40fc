// Package persistence provides standardized error types for storage
// operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations must use.
var (
	// ErrFlowNotFound indicates no flow exists with the given id.
	ErrFlowNotFound = errors.New("flow not found")

	// ErrRunNotFound indicates no run record exists with the given id.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunAlreadyExists indicates a run record with the same id exists.
	ErrRunAlreadyExists = errors.New("run already exists")

	// ErrQueueItemNotFound indicates no queue item exists with the given id.
	ErrQueueItemNotFound = errors.New("queue item not found")

	// ErrQueueEmpty indicates no item is currently claimable.
	ErrQueueEmpty = errors.New("queue has no claimable item")

	// ErrLeaseLost indicates a conditional write failed because the caller
	// no longer owns the lease on the record.
	ErrLeaseLost = errors.New("lease lost")

	// ErrSequenceConflict indicates an event append collided with an
	// existing (run, seq) pair.
	ErrSequenceConflict = errors.New("event sequence conflict")
)

// StoreError wraps a storage failure with operation context.
type StoreError struct {
	Op  string // Operation being performed (e.g. "ClaimNextItem")
	Key string // Record identifier if applicable
	Err error
}

func (e *StoreError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s failed for %s: %v", e.Op, e.Key, e.Err)
	}

	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStoreError creates a storage error with context.
func NewStoreError(op, key string, err error) *StoreError {
	return &StoreError{Op: op, Key: key, Err: err}
}

// IsFlowNotFound checks if an error indicates a missing flow.
func IsFlowNotFound(err error) bool {
	return errors.Is(err, ErrFlowNotFound)
}

// IsRunNotFound checks if an error indicates a missing run.
func IsRunNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}

// IsQueueEmpty checks if an error indicates an empty (or fully leased) queue.
func IsQueueEmpty(err error) bool {
	return errors.Is(err, ErrQueueEmpty)
}

// IsLeaseLost checks if an error indicates lost ownership.
func IsLeaseLost(err error) bool {
	return errors.Is(err, ErrLeaseLost)
}

// IsSequenceConflict checks if an error indicates an event seq collision.
func IsSequenceConflict(err error) bool {
	return errors.Is(err, ErrSequenceConflict)
}
