// Package models defines the core domain records for recorded automation flows.
package models

import (
	"errors"
	"fmt"
	"time"
)

// EdgeLabel disambiguates multiple outgoing edges from a node. Labels form a
// closed set so authoring errors surface at load time instead of mid-run.
type EdgeLabel string

const (
	EdgeLabelDefault EdgeLabel = "default"
	EdgeLabelTrue    EdgeLabel = "true"
	EdgeLabelFalse   EdgeLabel = "false"
	EdgeLabelOnError EdgeLabel = "onError"
)

// ParseEdgeLabel validates a raw label string. An empty string maps to the
// default label, matching how recorders omit the label on linear edges.
func ParseEdgeLabel(raw string) (EdgeLabel, error) {
	switch EdgeLabel(raw) {
	case "", EdgeLabelDefault:
		return EdgeLabelDefault, nil
	case EdgeLabelTrue:
		return EdgeLabelTrue, nil
	case EdgeLabelFalse:
		return EdgeLabelFalse, nil
	case EdgeLabelOnError:
		return EdgeLabelOnError, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownEdgeLabel, raw)
	}
}

// RetryPolicy retries a failed node a fixed number of times with a fixed
// interval. Backoff is intentionally not exponential: replayed recordings
// encode the author's intent, not a load-shedding strategy.
type RetryPolicy struct {
	Count      int   `json:"count"       validate:"min=0"`
	IntervalMs int64 `json:"interval_ms" validate:"min=0"`
}

// NodePolicy carries per-node execution policy.
type NodePolicy struct {
	Retry     *RetryPolicy `json:"retry,omitempty"`
	TimeoutMs int64        `json:"timeout_ms,omitempty" validate:"min=0"`
}

// FlowPolicy carries flow-wide defaults applied when a node has no policy of
// its own.
type FlowPolicy struct {
	DefaultTimeoutMs int64 `json:"default_timeout_ms,omitempty" validate:"min=0"`
}

// Node is one step in a Flow. Kind selects a registered executor; Config is
// an opaque payload interpreted only by that executor.
type Node struct {
	ID     string         `json:"id"   validate:"required"`
	Kind   string         `json:"kind" validate:"required"`
	Name   string         `json:"name,omitempty"`
	Config map[string]any `json:"config,omitempty"`
	Policy *NodePolicy    `json:"policy,omitempty"`
}

// Edge is a directed, labeled transition between two nodes.
type Edge struct {
	ID    string    `json:"id"   validate:"required"`
	From  string    `json:"from" validate:"required"`
	To    string    `json:"to"   validate:"required"`
	Label EdgeLabel `json:"label,omitempty"`
}

// Flow is a stored DAG definition of automation steps. Flows are immutable
// once stored; runs reference them by ID.
type Flow struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"        validate:"required,min=3"`
	Description string         `json:"description,omitempty"`
	EntryNodeID string         `json:"entry_node_id" validate:"required"`
	Nodes       []*Node        `json:"nodes"`
	Edges       []*Edge        `json:"edges"`
	Variables   map[string]any `json:"variables,omitempty"`
	Policy      *FlowPolicy    `json:"policy,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Structural validation errors.
var (
	ErrUnknownEdgeLabel = errors.New("unknown edge label")
	ErrEntryNodeMissing = errors.New("entry node does not exist")
	ErrDanglingEdge     = errors.New("edge references a missing node")
	ErrDuplicateLabel   = errors.New("node has more than one outgoing edge with the same label")
	ErrDuplicateNode    = errors.New("duplicate node id")
	ErrFlowCycle        = errors.New("flow graph contains a cycle reachable from the entry node")
)

// NodeByID returns the node with the given id.
func (f *Flow) NodeByID(id string) (*Node, bool) {
	for _, n := range f.Nodes {
		if n.ID == id {
			return n, true
		}
	}

	return nil, false
}

// EdgeFrom returns the outgoing edge of nodeID carrying the given label. An
// edge stored without a label matches the default label.
func (f *Flow) EdgeFrom(nodeID string, label EdgeLabel) (*Edge, bool) {
	for _, e := range f.Edges {
		stored := e.Label
		if stored == "" {
			stored = EdgeLabelDefault
		}

		if e.From == nodeID && stored == label {
			return e, true
		}
	}

	return nil, false
}

// Validate checks the structural invariants of the flow graph: node ids are
// unique, every edge endpoint exists, the entry node exists, each node has at
// most one outgoing edge per label, and no cycle is reachable from the entry
// node. Loop constructs are modeled as node kinds with internal state, never
// as raw graph cycles.
func (f *Flow) Validate() error {
	nodes := make(map[string]*Node, len(f.Nodes))

	for _, n := range f.Nodes {
		if _, dup := nodes[n.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID)
		}

		nodes[n.ID] = n
	}

	if _, ok := nodes[f.EntryNodeID]; !ok {
		return fmt.Errorf("%w: %s", ErrEntryNodeMissing, f.EntryNodeID)
	}

	seen := make(map[string]map[EdgeLabel]bool, len(f.Nodes))

	for i, e := range f.Edges {
		if _, err := ParseEdgeLabel(string(e.Label)); err != nil {
			return fmt.Errorf("edge %s: %w", e.ID, err)
		}

		if _, ok := nodes[e.From]; !ok {
			return fmt.Errorf("%w: edge %s from %s", ErrDanglingEdge, e.ID, e.From)
		}

		if _, ok := nodes[e.To]; !ok {
			return fmt.Errorf("%w: edge %s to %s", ErrDanglingEdge, e.ID, e.To)
		}

		label := f.Edges[i].Label
		if label == "" {
			label = EdgeLabelDefault
		}

		if seen[e.From] == nil {
			seen[e.From] = make(map[EdgeLabel]bool)
		}

		if seen[e.From][label] {
			return fmt.Errorf("%w: node %s label %s", ErrDuplicateLabel, e.From, label)
		}

		seen[e.From][label] = true
	}

	return f.checkAcyclic()
}

// checkAcyclic runs an iterative three-color DFS from the entry node.
func (f *Flow) checkAcyclic() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make(map[string]int, len(f.Nodes))
	next := make(map[string][]string, len(f.Nodes))

	for _, e := range f.Edges {
		next[e.From] = append(next[e.From], e.To)
	}

	var visit func(id string) error

	visit = func(id string) error {
		color[id] = gray

		for _, to := range next[id] {
			switch color[to] {
			case gray:
				return fmt.Errorf("%w: via %s -> %s", ErrFlowCycle, id, to)
			case white:
				if err := visit(to); err != nil {
					return err
				}
			}
		}

		color[id] = black

		return nil
	}

	return visit(f.EntryNodeID)
}
