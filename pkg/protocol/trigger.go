package protocol

import "context"

// ExecuteRequest is what a trigger source asks the engine to do: enqueue one
// run of a flow. Triggers know nothing else about the kernel.
type ExecuteRequest struct {
	FlowID   string         `json:"flow_id"`
	Args     map[string]any `json:"args,omitempty"`
	Priority int            `json:"priority,omitempty"`
}

// TriggerCallback enqueues a run on behalf of a trigger source.
type TriggerCallback func(ctx context.Context, req ExecuteRequest) (runID string, err error)

// Trigger is a long-running source of execute requests (cron schedule,
// queue consumer, webhook, ...).
type Trigger interface {
	Start(ctx context.Context, callback TriggerCallback) error
	Stop(ctx context.Context) error
	Validate() error
}
