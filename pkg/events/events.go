// Package events defines the append-only run event log and the bus
// notifications derived from it.
package events

import (
	"time"

	"github.com/replaykit/replaykit/pkg/models"
)

// EventType identifies a run event.
type EventType string

const (
	RunStarted       EventType = "run.started"
	RunNodeStarted   EventType = "run.node.started"
	RunNodeCompleted EventType = "run.node.completed"
	RunNodeFailed    EventType = "run.node.failed"
	RunPaused        EventType = "run.paused"
	RunResumed       EventType = "run.resumed"
	RunCanceled      EventType = "run.canceled"
	RunFailed        EventType = "run.failed"
	RunSucceeded     EventType = "run.succeeded"
)

// RunEvent is one immutable, ordered fact about a run's progress. Events are
// strictly ordered by Seq per RunID, append-only, and are the durable audit
// trail: a run's observable state is fully reconstructible from them.
type RunEvent struct {
	RunID     string    `json:"run_id"`
	Seq       int64     `json:"seq"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// Node fields, set on run.node.* events.
	NodeID  string `json:"node_id,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Attempt int    `json:"attempt,omitempty"`

	// Output carries the executor result payload on run.node.completed.
	Output map[string]any   `json:"output,omitempty"`
	Next   models.EdgeLabel `json:"next,omitempty"`

	// Error fields, set on run.node.failed and run.failed.
	ErrorKind   models.ErrorKind `json:"error_kind,omitempty"`
	ErrorDetail string           `json:"error_detail,omitempty"`
}

// New creates a run event stamped with the current time.
func New(runID string, seq int64, eventType EventType) *RunEvent {
	return &RunEvent{
		RunID:     runID,
		Seq:       seq,
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
}

// RunSnapshot is the state of a run reconstructed by replaying its events.
type RunSnapshot struct {
	RunID          string
	Status         models.RunStatus
	CurrentNodeID  string
	NodeOutputs    map[string]map[string]any
	NodesStarted   int
	NodesCompleted int
	NodesFailed    int
	LastSeq        int64
	ErrorKind      models.ErrorKind
	ErrorDetail    string
}

// ReplayState rebuilds a run snapshot from its ordered event log. The input
// must be sorted by Seq ascending, as returned by the event repository.
func ReplayState(evts []*RunEvent) *RunSnapshot {
	snap := &RunSnapshot{
		Status:      models.RunStatusQueued,
		NodeOutputs: make(map[string]map[string]any),
	}

	for _, e := range evts {
		snap.RunID = e.RunID
		snap.LastSeq = e.Seq

		switch e.Type {
		case RunStarted, RunResumed:
			snap.Status = models.RunStatusRunning
		case RunNodeStarted:
			snap.Status = models.RunStatusRunning
			snap.CurrentNodeID = e.NodeID
			snap.NodesStarted++
		case RunNodeCompleted:
			snap.NodesCompleted++
			if e.Output != nil {
				snap.NodeOutputs[e.NodeID] = e.Output
			}
		case RunNodeFailed:
			snap.NodesFailed++
		case RunPaused:
			snap.Status = models.RunStatusPaused
		case RunCanceled:
			snap.Status = models.RunStatusCanceled
		case RunSucceeded:
			snap.Status = models.RunStatusSucceeded
		case RunFailed:
			snap.Status = models.RunStatusFailed
			snap.ErrorKind = e.ErrorKind
			snap.ErrorDetail = e.ErrorDetail
		}
	}

	return snap
}

// Contiguous reports whether the event log has strictly increasing seq
// numbers with no gaps, starting at 1.
func Contiguous(evts []*RunEvent) bool {
	for i, e := range evts {
		if e.Seq != int64(i)+1 {
			return false
		}
	}

	return true
}
