package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/floweave/floweave"
)

// AddNode inserts a single node into a workflow. If node.ID is empty, a
// UUID is auto-generated. Adding a second manual-trigger node is
// rejected, and adding the first real node removes the initial
// placeholder. Returns the node ID (generated or provided).
func (s *PGStore) AddNode(ctx context.Context, workflowID string, node *floweave.NodeSpec) (string, error) {
	if node.ID == "" {
		node.ID = uuid.NewString()
	}
	if !node.Kind.Known() {
		return "", fmt.Errorf("floweave: unknown node kind %q", node.Kind)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("floweave: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if node.Kind.IsTrigger() {
		var triggers int
		err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM workflow_nodes WHERE workflow_id = $1 AND kind = $2`,
			workflowID, string(floweave.KindManualTrigger),
		).Scan(&triggers)
		if err != nil {
			return "", fmt.Errorf("floweave: count triggers: %w", err)
		}
		if triggers > 0 {
			return "", floweave.ErrDuplicateTrigger
		}
	}

	// The placeholder only exists while the workflow is empty.
	if node.Kind != floweave.KindInitial {
		if _, err := tx.Exec(ctx,
			`DELETE FROM workflow_nodes WHERE workflow_id = $1 AND kind = $2`,
			workflowID, string(floweave.KindInitial),
		); err != nil {
			return "", fmt.Errorf("floweave: remove placeholder: %w", err)
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO workflow_nodes (id, workflow_id, kind, config, pos_x, pos_y) VALUES ($1, $2, $3, $4, $5, $6)`,
		node.ID, workflowID, string(node.Kind), configOrEmpty(node.Config), node.Position.X, node.Position.Y,
	); err != nil {
		return "", fmt.Errorf("floweave: insert node: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("floweave: commit: %w", err)
	}

	return node.ID, nil
}

// GetNode fetches a single node by its ID.
// Returns nil, nil if not found.
func (s *PGStore) GetNode(ctx context.Context, nodeID string) (*floweave.NodeSpec, error) {
	var n floweave.NodeSpec
	var kind string
	err := s.db.QueryRow(ctx,
		`SELECT id, kind, config, pos_x, pos_y FROM workflow_nodes WHERE id = $1`, nodeID,
	).Scan(&n.ID, &kind, &n.Config, &n.Position.X, &n.Position.Y)

	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("floweave: get node: %w", err)
	}

	n.Kind = floweave.NodeKind(kind)
	return &n, nil
}

// UpdateNode updates the config and position of an existing node.
// Returns ErrNodeNotFound if the node doesn't exist.
func (s *PGStore) UpdateNode(ctx context.Context, node *floweave.NodeSpec) error {
	ct, err := s.db.Exec(ctx,
		`UPDATE workflow_nodes SET config = $1, pos_x = $2, pos_y = $3 WHERE id = $4`,
		configOrEmpty(node.Config), node.Position.X, node.Position.Y, node.ID,
	)
	if err != nil {
		return fmt.Errorf("floweave: update node: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return floweave.ErrNodeNotFound
	}
	return nil
}

// DeleteNode deletes a node by its ID.
// Edges touching the node are cascade-deleted by the DB.
// No error if the node doesn't exist.
func (s *PGStore) DeleteNode(ctx context.Context, nodeID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM workflow_nodes WHERE id = $1`, nodeID)
	if err != nil {
		return fmt.Errorf("floweave: delete node: %w", err)
	}
	return nil
}

// ListNodes returns all nodes for a workflow, ordered by created_at.
// Returns an empty slice (not nil) if none found.
func (s *PGStore) ListNodes(ctx context.Context, workflowID string) ([]floweave.NodeSpec, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, kind, config, pos_x, pos_y FROM workflow_nodes WHERE workflow_id = $1 ORDER BY created_at`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("floweave: list nodes: %w", err)
	}
	defer rows.Close()

	nodes := []floweave.NodeSpec{}
	for rows.Next() {
		var n floweave.NodeSpec
		var kind string
		if err := rows.Scan(&n.ID, &kind, &n.Config, &n.Position.X, &n.Position.Y); err != nil {
			return nil, fmt.Errorf("floweave: scan node: %w", err)
		}
		n.Kind = floweave.NodeKind(kind)
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("floweave: rows nodes: %w", err)
	}

	return nodes, nil
}
