package engine

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNoTrigger means the workflow has no trigger node to start from.
	ErrNoTrigger = errors.New("engine: workflow has no trigger node")
	// ErrRunAborted means cancellation was observed between node
	// executions. It is not an execution fault.
	ErrRunAborted = errors.New("engine: run aborted")
)

// ErrorKind classifies why a node failed during a run.
type ErrorKind string

const (
	// HandlerFault covers errors and panics surfaced by the node's handler.
	HandlerFault ErrorKind = "handler_fault"
	// ExecutionTimeout means the node exceeded its execution deadline.
	ExecutionTimeout ErrorKind = "execution_timeout"
	// UpstreamFailed marks a node skipped because a predecessor failed.
	UpstreamFailed ErrorKind = "upstream_failed"
)

// ExecutionError is a per-node failure during a run. It is fatal to the
// node and its downstream-only successors, never to the run as a whole.
type ExecutionError struct {
	Kind   ErrorKind
	NodeID string
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("engine: node %s %s: %v", e.NodeID, e.Kind, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// MarshalJSON renders the error with its message, since wrapped errors
// have no useful JSON form of their own.
func (e *ExecutionError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind    ErrorKind `json:"kind"`
		NodeID  string    `json:"node_id"`
		Message string    `json:"message"`
	}{e.Kind, e.NodeID, e.Err.Error()})
}
