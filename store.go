package floweave

import "context"

// Store defines the contract for persisting and retrieving workflows.
// LoadGraph is the engine-facing entry point; the rest is the CRUD
// surface the editor uses.
type Store interface {
	// Schema
	CreateSchema(ctx context.Context) error
	DropSchema(ctx context.Context) error

	// Workflows (bulk operations)
	CreateWorkflow(ctx context.Context, w *Workflow) (*Workflow, error)
	LoadGraph(ctx context.Context, workflowID string) (*Workflow, error)
	DeleteWorkflow(ctx context.Context, workflowID string) error

	// Nodes
	AddNode(ctx context.Context, workflowID string, node *NodeSpec) (string, error)
	GetNode(ctx context.Context, nodeID string) (*NodeSpec, error)
	UpdateNode(ctx context.Context, node *NodeSpec) error
	DeleteNode(ctx context.Context, nodeID string) error
	ListNodes(ctx context.Context, workflowID string) ([]NodeSpec, error)

	// Edges
	AddEdge(ctx context.Context, workflowID string, edge *Edge) (string, error)
	GetEdge(ctx context.Context, edgeID string) (*Edge, error)
	UpdateEdge(ctx context.Context, edge *Edge) error
	DeleteEdge(ctx context.Context, edgeID string) error
	ListEdges(ctx context.Context, workflowID string) ([]Edge, error)
}
