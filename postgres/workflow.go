package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/floweave/floweave"
)

// CreateWorkflow saves a full workflow (nodes + edges) in one transaction.
// Nodes/edges without IDs get auto-generated UUIDs. Edge refs
// (FromNodeRef/ToNodeRef) are resolved to real node IDs. A workflow
// created with no nodes gets the initial placeholder node automatically.
// Returns the workflow with all IDs filled in.
func (s *PGStore) CreateWorkflow(ctx context.Context, w *floweave.Workflow) (*floweave.Workflow, error) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}

	// A brand new workflow starts with just the placeholder until the user
	// adds real nodes.
	if len(w.Nodes) == 0 {
		w.Nodes = []floweave.NodeSpec{{Kind: floweave.KindInitial}}
	}

	// Build ref → UUID mapping and assign IDs to nodes.
	refMap := make(map[string]string)
	for i := range w.Nodes {
		n := &w.Nodes[i]
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		if n.Ref != "" {
			refMap[n.Ref] = n.ID
		}
	}

	// Resolve edge refs and assign IDs to edges.
	for i := range w.Edges {
		e := &w.Edges[i]
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.FromPort == "" {
			e.FromPort = floweave.PortMain
		}
		if e.ToPort == "" {
			e.ToPort = floweave.PortMain
		}
		if e.FromNodeRef != "" {
			id, ok := refMap[e.FromNodeRef]
			if !ok {
				return nil, fmt.Errorf("floweave: unknown from_node_ref %q", e.FromNodeRef)
			}
			e.FromNode = id
		}
		if e.ToNodeRef != "" {
			id, ok := refMap[e.ToNodeRef]
			if !ok {
				return nil, fmt.Errorf("floweave: unknown to_node_ref %q", e.ToNodeRef)
			}
			e.ToNode = id
		}
	}

	if err := checkGraph(w.Nodes, w.Edges); err != nil {
		return nil, err
	}

	// Persist in a single transaction, replace semantics.
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("floweave: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO workflows (id, name) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`,
		w.ID, w.Name,
	); err != nil {
		return nil, fmt.Errorf("floweave: upsert workflow: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM workflow_edges WHERE workflow_id = $1`, w.ID); err != nil {
		return nil, fmt.Errorf("floweave: delete edges: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM workflow_nodes WHERE workflow_id = $1`, w.ID); err != nil {
		return nil, fmt.Errorf("floweave: delete nodes: %w", err)
	}

	for _, n := range w.Nodes {
		if _, err := tx.Exec(ctx,
			`INSERT INTO workflow_nodes (id, workflow_id, kind, config, pos_x, pos_y) VALUES ($1, $2, $3, $4, $5, $6)`,
			n.ID, w.ID, string(n.Kind), configOrEmpty(n.Config), n.Position.X, n.Position.Y,
		); err != nil {
			return nil, fmt.Errorf("floweave: insert node %s: %w", n.ID, err)
		}
	}
	for _, e := range w.Edges {
		if _, err := tx.Exec(ctx,
			`INSERT INTO workflow_edges (id, workflow_id, from_node_id, from_port, to_node_id, to_port) VALUES ($1, $2, $3, $4, $5, $6)`,
			e.ID, w.ID, e.FromNode, string(e.FromPort), e.ToNode, string(e.ToPort),
		); err != nil {
			return nil, fmt.Errorf("floweave: insert edge %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("floweave: commit: %w", err)
	}

	// Clear ref fields from response — they are not persisted.
	for i := range w.Nodes {
		w.Nodes[i].Ref = ""
	}
	for i := range w.Edges {
		w.Edges[i].FromNodeRef = ""
		w.Edges[i].ToNodeRef = ""
	}

	return w, nil
}

// LoadGraph retrieves the execution-shaped snapshot of a workflow: nodes
// and edges in insertion order. Returns ErrWorkflowNotFound if the
// workflow does not exist.
func (s *PGStore) LoadGraph(ctx context.Context, workflowID string) (*floweave.Workflow, error) {
	w := &floweave.Workflow{ID: workflowID}

	err := s.db.QueryRow(ctx,
		`SELECT name FROM workflows WHERE id = $1`, workflowID,
	).Scan(&w.Name)
	if err != nil {
		if isNoRows(err) {
			return nil, floweave.ErrWorkflowNotFound
		}
		return nil, fmt.Errorf("floweave: get workflow: %w", err)
	}

	if w.Nodes, err = s.ListNodes(ctx, workflowID); err != nil {
		return nil, err
	}
	if w.Edges, err = s.ListEdges(ctx, workflowID); err != nil {
		return nil, err
	}
	return w, nil
}

// DeleteWorkflow removes a workflow and all its nodes and edges.
// No error if the workflowID doesn't exist.
func (s *PGStore) DeleteWorkflow(ctx context.Context, workflowID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM workflows WHERE id = $1`, workflowID)
	if err != nil {
		return fmt.Errorf("floweave: delete workflow: %w", err)
	}
	return nil
}

func configOrEmpty(raw []byte) []byte {
	if len(raw) == 0 {
		return []byte(`{}`)
	}
	return raw
}

// checkGraph enforces the store-level structural invariants: at most one
// manual-trigger node, no duplicate edge on the same port pair, and
// acyclicity.
func checkGraph(nodes []floweave.NodeSpec, edges []floweave.Edge) error {
	triggers := 0
	for _, n := range nodes {
		if n.Kind.IsTrigger() {
			triggers++
		}
	}
	if triggers > 1 {
		return floweave.ErrDuplicateTrigger
	}

	type pair struct {
		from, to         string
		fromPort, toPort floweave.Port
	}
	seen := make(map[pair]bool, len(edges))
	for _, e := range edges {
		p := pair{e.FromNode, e.ToNode, e.FromPort, e.ToPort}
		if seen[p] {
			return floweave.ErrDuplicateEdge
		}
		seen[p] = true
	}

	return validateAcyclic(nodes, edges)
}

// validateAcyclic checks that the edges don't form a cycle using DFS.
func validateAcyclic(nodes []floweave.NodeSpec, edges []floweave.Edge) error {
	adj := make(map[string][]string)
	for _, e := range edges {
		adj[e.FromNode] = append(adj[e.FromNode], e.ToNode)
	}

	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)

	state := make(map[string]int)
	for _, n := range nodes {
		state[n.ID] = unvisited
	}
	// Also include nodes referenced only in edges.
	for _, e := range edges {
		if _, ok := state[e.FromNode]; !ok {
			state[e.FromNode] = unvisited
		}
		if _, ok := state[e.ToNode]; !ok {
			state[e.ToNode] = unvisited
		}
	}

	var dfs func(id string) bool
	dfs = func(id string) bool {
		state[id] = visiting
		for _, next := range adj[id] {
			switch state[next] {
			case visiting:
				return true
			case unvisited:
				if dfs(next) {
					return true
				}
			}
		}
		state[id] = visited
		return false
	}

	for id, st := range state {
		if st == unvisited {
			if dfs(id) {
				return floweave.ErrCycleDetected
			}
		}
	}

	return nil
}
