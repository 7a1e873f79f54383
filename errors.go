package floweave

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrWorkflowNotFound = errors.New("floweave: workflow not found")
	ErrNodeNotFound     = errors.New("floweave: node not found")
	ErrEdgeNotFound     = errors.New("floweave: edge not found")
	ErrCycleDetected    = errors.New("floweave: cycle detected, graph is not acyclic")
	ErrDuplicateTrigger = errors.New("floweave: workflow already has a manual-trigger node")
	ErrDuplicateEdge    = errors.New("floweave: duplicate edge on the same port pair")
)

// ValidationCode classifies a single structural violation found by Validate.
type ValidationCode string

const (
	CodeDanglingEdge     ValidationCode = "dangling_edge"
	CodeDuplicateTrigger ValidationCode = "duplicate_trigger"
	CodePlaceholderNode  ValidationCode = "placeholder_node"
	CodeInvalidPort      ValidationCode = "invalid_port"
	CodeDuplicateEdge    ValidationCode = "duplicate_edge"
	CodeDuplicateNode    ValidationCode = "duplicate_node"
	CodeUnknownKind      ValidationCode = "unknown_kind"
	CodeBadConfig        ValidationCode = "bad_config"
)

// ValidationError is one structural violation in a workflow graph.
// Validate collects every violation it finds rather than stopping at the
// first, so callers can surface them all at once.
type ValidationError struct {
	Code   ValidationCode
	NodeID string
	EdgeID string
	Detail string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "floweave: %s", e.Code)
	if e.NodeID != "" {
		fmt.Fprintf(&b, " node=%s", e.NodeID)
	}
	if e.EdgeID != "" {
		fmt.Fprintf(&b, " edge=%s", e.EdgeID)
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, ": %s", e.Detail)
	}
	return b.String()
}

// CycleError reports that the graph is not a DAG, naming the nodes still
// caught in a cycle.
type CycleError struct {
	NodeIDs []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("floweave: cycle detected involving nodes [%s]", strings.Join(e.NodeIDs, ", "))
}

func (e *CycleError) Unwrap() error { return ErrCycleDetected }
