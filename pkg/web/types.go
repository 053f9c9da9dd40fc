package web

import "github.com/replaykit/replaykit/pkg/models"

// CreateFlowRequest is the payload for creating a flow definition.
type CreateFlowRequest struct {
	Name        string             `json:"name"          validate:"required,min=3"`
	Description string             `json:"description"`
	EntryNodeID string             `json:"entry_node_id" validate:"required"`
	Nodes       []*models.Node     `json:"nodes"         validate:"required,min=1"`
	Edges       []*models.Edge     `json:"edges"`
	Variables   map[string]any     `json:"variables"`
	Policy      *models.FlowPolicy `json:"policy"`
}

// ExecuteFlowRequest is the payload for starting a run of a flow.
type ExecuteFlowRequest struct {
	Args     map[string]any `json:"args"`
	Priority int            `json:"priority" validate:"min=0"`
}

// ExecuteFlowResponse returns the identity of the queued run.
type ExecuteFlowResponse struct {
	RunID  string `json:"run_id"`
	FlowID string `json:"flow_id"`
	Status string `json:"status"`
}

func (r CreateFlowRequest) toFlow() *models.Flow {
	return &models.Flow{
		Name:        r.Name,
		Description: r.Description,
		EntryNodeID: r.EntryNodeID,
		Nodes:       r.Nodes,
		Edges:       r.Edges,
		Variables:   r.Variables,
		Policy:      r.Policy,
	}
}
