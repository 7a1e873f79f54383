package floweave

import "context"

// NodeStatus is the four-state vocabulary the UI's status indicator
// understands. Nodes that never run stay at StatusInitial.
type NodeStatus string

const (
	StatusInitial NodeStatus = "initial"
	StatusLoading NodeStatus = "loading"
	StatusSuccess NodeStatus = "success"
	StatusError   NodeStatus = "error"
)

// StatusEvent is emitted once per node status transition during a run.
type StatusEvent struct {
	WorkflowID string     `json:"workflow_id"`
	RunID      string     `json:"run_id"`
	NodeID     string     `json:"node_id"`
	Status     NodeStatus `json:"status"`
}

// EventSink receives node status transitions. Implementations belong to
// the UI/telemetry side; the engine only emits. Emit is called from the
// run's goroutine and should not block for long.
type EventSink interface {
	Emit(ctx context.Context, ev StatusEvent)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Emit(context.Context, StatusEvent) {}
