package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/floweave/floweave"
)

// AddEdge inserts a single edge into a workflow. If edge.ID is empty, a
// UUID is auto-generated; empty ports default to "main". Validates that
// adding this edge neither creates a cycle nor duplicates an existing
// port pair. Returns the edge ID (generated or provided).
func (s *PGStore) AddEdge(ctx context.Context, workflowID string, edge *floweave.Edge) (string, error) {
	if edge.ID == "" {
		edge.ID = uuid.NewString()
	}
	if edge.FromPort == "" {
		edge.FromPort = floweave.PortMain
	}
	if edge.ToPort == "" {
		edge.ToPort = floweave.PortMain
	}

	// Fetch existing edges + nodes for structural checks.
	nodes, err := s.ListNodes(ctx, workflowID)
	if err != nil {
		return "", err
	}
	edges, err := s.ListEdges(ctx, workflowID)
	if err != nil {
		return "", err
	}

	edges = append(edges, *edge)
	if err := checkGraph(nodes, edges); err != nil {
		return "", err
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO workflow_edges (id, workflow_id, from_node_id, from_port, to_node_id, to_port) VALUES ($1, $2, $3, $4, $5, $6)`,
		edge.ID, workflowID, edge.FromNode, string(edge.FromPort), edge.ToNode, string(edge.ToPort),
	)
	if err != nil {
		return "", fmt.Errorf("floweave: insert edge: %w", err)
	}

	return edge.ID, nil
}

// GetEdge fetches a single edge by its ID.
// Returns nil, nil if not found.
func (s *PGStore) GetEdge(ctx context.Context, edgeID string) (*floweave.Edge, error) {
	var e floweave.Edge
	var fromPort, toPort string
	err := s.db.QueryRow(ctx,
		`SELECT id, from_node_id, from_port, to_node_id, to_port FROM workflow_edges WHERE id = $1`, edgeID,
	).Scan(&e.ID, &e.FromNode, &fromPort, &e.ToNode, &toPort)

	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("floweave: get edge: %w", err)
	}

	e.FromPort = floweave.Port(fromPort)
	e.ToPort = floweave.Port(toPort)
	return &e, nil
}

// UpdateEdge rewires an existing edge. Validates that the update neither
// creates a cycle nor duplicates a port pair.
// Returns ErrEdgeNotFound if the edge doesn't exist.
func (s *PGStore) UpdateEdge(ctx context.Context, edge *floweave.Edge) error {
	if edge.FromPort == "" {
		edge.FromPort = floweave.PortMain
	}
	if edge.ToPort == "" {
		edge.ToPort = floweave.PortMain
	}

	// First find the edge's workflow_id.
	var workflowID string
	err := s.db.QueryRow(ctx,
		`SELECT workflow_id FROM workflow_edges WHERE id = $1`, edge.ID,
	).Scan(&workflowID)
	if err != nil {
		if isNoRows(err) {
			return floweave.ErrEdgeNotFound
		}
		return fmt.Errorf("floweave: find edge: %w", err)
	}

	nodes, err := s.ListNodes(ctx, workflowID)
	if err != nil {
		return err
	}
	existing, err := s.ListEdges(ctx, workflowID)
	if err != nil {
		return err
	}

	// Replace the updated edge in the list.
	for i := range existing {
		if existing[i].ID == edge.ID {
			existing[i].FromNode = edge.FromNode
			existing[i].FromPort = edge.FromPort
			existing[i].ToNode = edge.ToNode
			existing[i].ToPort = edge.ToPort
			break
		}
	}

	if err := checkGraph(nodes, existing); err != nil {
		return err
	}

	ct, err := s.db.Exec(ctx,
		`UPDATE workflow_edges SET from_node_id = $1, from_port = $2, to_node_id = $3, to_port = $4 WHERE id = $5`,
		edge.FromNode, string(edge.FromPort), edge.ToNode, string(edge.ToPort), edge.ID,
	)
	if err != nil {
		return fmt.Errorf("floweave: update edge: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return floweave.ErrEdgeNotFound
	}
	return nil
}

// DeleteEdge deletes an edge by its ID.
// No error if the edge doesn't exist.
func (s *PGStore) DeleteEdge(ctx context.Context, edgeID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM workflow_edges WHERE id = $1`, edgeID)
	if err != nil {
		return fmt.Errorf("floweave: delete edge: %w", err)
	}
	return nil
}

// ListEdges returns all edges for a workflow, ordered by created_at.
// Returns an empty slice (not nil) if none found.
func (s *PGStore) ListEdges(ctx context.Context, workflowID string) ([]floweave.Edge, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, from_node_id, from_port, to_node_id, to_port FROM workflow_edges WHERE workflow_id = $1 ORDER BY created_at`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("floweave: list edges: %w", err)
	}
	defer rows.Close()

	edges := []floweave.Edge{}
	for rows.Next() {
		var e floweave.Edge
		var fromPort, toPort string
		if err := rows.Scan(&e.ID, &e.FromNode, &fromPort, &e.ToNode, &toPort); err != nil {
			return nil, fmt.Errorf("floweave: scan edge: %w", err)
		}
		e.FromPort = floweave.Port(fromPort)
		e.ToPort = floweave.Port(toPort)
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("floweave: rows edges: %w", err)
	}

	return edges, nil
}
