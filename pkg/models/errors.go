package models

import (
	"errors"
	"fmt"
)

// ErrorKind is the execution error taxonomy. Kinds are recorded on events
// and on failed run records; they are the only error channel callers see.
type ErrorKind string

const (
	// ErrorKindConfig marks a non-retryable authoring error: unknown node
	// kind or malformed flow.
	ErrorKindConfig ErrorKind = "CONFIG_ERROR"

	// ErrorKindNodeFailed marks an executor-reported failure, retryable per
	// node policy.
	ErrorKindNodeFailed ErrorKind = "NODE_FAILED"

	// ErrorKindNodeTimeout marks a node deadline expiry; handled like
	// ErrorKindNodeFailed.
	ErrorKindNodeTimeout ErrorKind = "NODE_TIMEOUT"

	// ErrorKindRunTerminal marks an API call against a finished run.
	ErrorKindRunTerminal ErrorKind = "RUN_TERMINAL"

	// ErrorKindLeaseLost marks loss of queue-item ownership mid-execution.
	ErrorKindLeaseLost ErrorKind = "LEASE_LOST"
)

var (
	// ErrRunTerminal rejects control operations on runs in an absorbing state.
	ErrRunTerminal = errors.New("run is in a terminal state")

	// ErrRunNotPaused rejects resume on a run that is not paused.
	ErrRunNotPaused = errors.New("run is not paused")
)

// NodeError carries a node-level execution failure with its taxonomy kind.
type NodeError struct {
	Kind   ErrorKind
	NodeID string
	Err    error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %s: %v", e.NodeID, e.Kind, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// Retryable reports whether policy-driven retries apply to this failure.
// Config errors never retry; they indicate the flow itself is wrong.
func (e *NodeError) Retryable() bool {
	return e.Kind == ErrorKindNodeFailed || e.Kind == ErrorKindNodeTimeout
}

// NewNodeError wraps err with the node id and taxonomy kind.
func NewNodeError(kind ErrorKind, nodeID string, err error) *NodeError {
	return &NodeError{Kind: kind, NodeID: nodeID, Err: err}
}
