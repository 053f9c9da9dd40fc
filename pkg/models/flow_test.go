package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linearFlow() *Flow {
	return &Flow{
		ID:          "flow-test",
		Name:        "Linear Flow",
		EntryNodeID: "a",
		Nodes: []*Node{
			{ID: "a", Kind: "noop-success"},
			{ID: "b", Kind: "noop-success"},
			{ID: "c", Kind: "noop-success"},
		},
		Edges: []*Edge{
			{ID: "e1", From: "a", To: "b"},
			{ID: "e2", From: "b", To: "c", Label: EdgeLabelDefault},
		},
	}
}

func TestParseEdgeLabel(t *testing.T) {
	tests := []struct {
		raw      string
		expected EdgeLabel
		wantErr  bool
	}{
		{raw: "", expected: EdgeLabelDefault},
		{raw: "default", expected: EdgeLabelDefault},
		{raw: "true", expected: EdgeLabelTrue},
		{raw: "false", expected: EdgeLabelFalse},
		{raw: "onError", expected: EdgeLabelOnError},
		{raw: "maybe", wantErr: true},
	}

	for _, tt := range tests {
		t.Run("label "+tt.raw, func(t *testing.T) {
			label, err := ParseEdgeLabel(tt.raw)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnknownEdgeLabel)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, label)
		})
	}
}

func TestFlow_Validate(t *testing.T) {
	t.Run("valid linear flow", func(t *testing.T) {
		assert.NoError(t, linearFlow().Validate())
	})

	t.Run("duplicate node id", func(t *testing.T) {
		flow := linearFlow()
		flow.Nodes = append(flow.Nodes, &Node{ID: "a", Kind: "log"})

		assert.ErrorIs(t, flow.Validate(), ErrDuplicateNode)
	})

	t.Run("missing entry node", func(t *testing.T) {
		flow := linearFlow()
		flow.EntryNodeID = "missing"

		assert.ErrorIs(t, flow.Validate(), ErrEntryNodeMissing)
	})

	t.Run("dangling edge source", func(t *testing.T) {
		flow := linearFlow()
		flow.Edges = append(flow.Edges, &Edge{ID: "e3", From: "ghost", To: "a"})

		assert.ErrorIs(t, flow.Validate(), ErrDanglingEdge)
	})

	t.Run("dangling edge target", func(t *testing.T) {
		flow := linearFlow()
		flow.Edges = append(flow.Edges, &Edge{ID: "e3", From: "c", To: "ghost"})

		assert.ErrorIs(t, flow.Validate(), ErrDanglingEdge)
	})

	t.Run("unknown edge label", func(t *testing.T) {
		flow := linearFlow()
		flow.Edges[0].Label = "sometimes"

		assert.ErrorIs(t, flow.Validate(), ErrUnknownEdgeLabel)
	})

	t.Run("duplicate label on same source", func(t *testing.T) {
		flow := linearFlow()
		flow.Edges = append(flow.Edges, &Edge{ID: "e3", From: "a", To: "c"})

		assert.ErrorIs(t, flow.Validate(), ErrDuplicateLabel)
	})

	t.Run("empty and default labels collide", func(t *testing.T) {
		flow := linearFlow()
		flow.Edges = append(flow.Edges, &Edge{ID: "e3", From: "a", To: "c", Label: EdgeLabelDefault})

		assert.ErrorIs(t, flow.Validate(), ErrDuplicateLabel)
	})

	t.Run("branching labels on same source are fine", func(t *testing.T) {
		flow := &Flow{
			Name:        "Branching Flow",
			EntryNodeID: "check",
			Nodes: []*Node{
				{ID: "check", Kind: "condition"},
				{ID: "yes", Kind: "log"},
				{ID: "no", Kind: "log"},
			},
			Edges: []*Edge{
				{ID: "e1", From: "check", To: "yes", Label: EdgeLabelTrue},
				{ID: "e2", From: "check", To: "no", Label: EdgeLabelFalse},
			},
		}

		assert.NoError(t, flow.Validate())
	})

	t.Run("self loop", func(t *testing.T) {
		flow := linearFlow()
		flow.Edges = append(flow.Edges, &Edge{ID: "e3", From: "c", To: "c"})

		assert.ErrorIs(t, flow.Validate(), ErrFlowCycle)
	})

	t.Run("cycle reachable from entry", func(t *testing.T) {
		flow := linearFlow()
		flow.Edges[1].Label = EdgeLabelTrue
		flow.Edges = append(flow.Edges, &Edge{ID: "e3", From: "c", To: "a"})

		assert.ErrorIs(t, flow.Validate(), ErrFlowCycle)
	})

	t.Run("cycle not reachable from entry passes", func(t *testing.T) {
		flow := linearFlow()
		flow.Nodes = append(flow.Nodes,
			&Node{ID: "x", Kind: "log"},
			&Node{ID: "y", Kind: "log"},
		)
		flow.Edges = append(flow.Edges,
			&Edge{ID: "e3", From: "x", To: "y"},
			&Edge{ID: "e4", From: "y", To: "x"},
		)

		assert.NoError(t, flow.Validate())
	})
}

func TestFlow_EdgeFrom(t *testing.T) {
	flow := linearFlow()

	t.Run("explicit default label", func(t *testing.T) {
		edge, ok := flow.EdgeFrom("b", EdgeLabelDefault)
		require.True(t, ok)
		assert.Equal(t, "c", edge.To)
	})

	t.Run("empty stored label matches default", func(t *testing.T) {
		edge, ok := flow.EdgeFrom("a", EdgeLabelDefault)
		require.True(t, ok)
		assert.Equal(t, "b", edge.To)
	})

	t.Run("no outgoing edge", func(t *testing.T) {
		_, ok := flow.EdgeFrom("c", EdgeLabelDefault)
		assert.False(t, ok)
	})

	t.Run("label mismatch", func(t *testing.T) {
		_, ok := flow.EdgeFrom("a", EdgeLabelOnError)
		assert.False(t, ok)
	})
}

func TestFlow_NodeByID(t *testing.T) {
	flow := linearFlow()

	node, ok := flow.NodeByID("b")
	require.True(t, ok)
	assert.Equal(t, "noop-success", node.Kind)

	_, ok = flow.NodeByID("ghost")
	assert.False(t, ok)
}
