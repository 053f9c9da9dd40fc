package models

import "time"

// RunStatus is the lifecycle state of a run. Transitions form a strict state
// machine: queued -> running -> {succeeded, failed, canceled}, with
// running <-> paused as the only reversible side transition.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusPaused    RunStatus = "paused"
	RunStatusCanceled  RunStatus = "canceled"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// Terminal reports whether the status is absorbing. API calls against a
// terminal run are rejected with ErrRunTerminal.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed, RunStatusCanceled:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the state machine permits moving from s to
// next.
func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	switch s {
	case RunStatusQueued:
		return next == RunStatusRunning || next == RunStatusCanceled || next == RunStatusFailed
	case RunStatusRunning:
		return next == RunStatusPaused || next == RunStatusCanceled ||
			next == RunStatusSucceeded || next == RunStatusFailed
	case RunStatusPaused:
		return next == RunStatusRunning || next == RunStatusCanceled || next == RunStatusFailed
	default:
		return false
	}
}

// ControlRequest is a pending pause/cancel request set by the control
// surface and observed by the runner at node boundaries.
type ControlRequest string

const (
	ControlNone   ControlRequest = ""
	ControlPause  ControlRequest = "pause"
	ControlCancel ControlRequest = "cancel"
)

// RunRecord is the mutable record of one execution of a flow. NextSeq is the
// only sequencing authority for the run's events; it only ever increases.
type RunRecord struct {
	ID             string         `json:"id"`
	FlowID         string         `json:"flow_id" validate:"required"`
	Status         RunStatus      `json:"status"`
	CurrentNodeID  string         `json:"current_node_id,omitempty"`
	Attempt        int            `json:"attempt"`
	MaxAttempts    int            `json:"max_attempts"`
	NextSeq        int64          `json:"next_seq"`
	Args           map[string]any `json:"args,omitempty"`
	PendingControl ControlRequest `json:"pending_control,omitempty"`
	LeaseOwner     string         `json:"lease_owner,omitempty"`
	ErrorKind      ErrorKind      `json:"error_kind,omitempty"`
	ErrorDetail    string         `json:"error_detail,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	FinishedAt     *time.Time     `json:"finished_at,omitempty"`
}

// ExecutionScope is the read side handed to executors: run identity plus the
// variable namespace resolved so far. Executors must not mutate it; outputs
// flow back through the executor result.
type ExecutionScope struct {
	RunID       string                    `json:"run_id"`
	FlowID      string                    `json:"flow_id"`
	Args        map[string]any            `json:"args,omitempty"`
	Variables   map[string]any            `json:"variables,omitempty"`
	NodeOutputs map[string]map[string]any `json:"node_outputs,omitempty"`
}
