// Package protocol defines the contracts between the execution kernel and
// pluggable step executors and trigger sources.
package protocol

import (
	"context"
	"log/slog"

	"github.com/replaykit/replaykit/pkg/models"
)

// Outcome is an executor's verdict for one invocation.
type Outcome string

const (
	// OutcomeSuccess advances the run along the selected edge.
	OutcomeSuccess Outcome = "success"

	// OutcomeFailure routes through retry policy, then onError handling.
	OutcomeFailure Outcome = "failure"

	// OutcomeSuspended parks the run (paused) without completing the node;
	// the node re-executes when the run is resumed.
	OutcomeSuspended Outcome = "suspended"
)

// Result is what an executor reports back to the runner.
type Result struct {
	Outcome Outcome

	// Next overrides the edge label to follow, used by branching nodes to
	// report true/false. Empty means the default edge.
	Next models.EdgeLabel

	// Output is merged into run-scoped state under the node's id and made
	// available to later nodes through templating.
	Output map[string]any
}

// Executor runs one node kind. Implementations receive the node config with
// template expressions already resolved, and must honor ctx cancellation:
// the runner derives ctx from the node deadline and from run cancellation.
type Executor interface {
	// Kind returns the node kind string this executor serves.
	Kind() string

	// Execute performs the step. A non-nil error marks the invocation as
	// failed regardless of the returned result.
	Execute(ctx context.Context, scope models.ExecutionScope, config map[string]any, logger *slog.Logger) (*Result, error)

	// Schema returns the JSON schema for the node config, used to validate
	// flows at load time. A nil schema skips config validation.
	Schema() map[string]any
}
