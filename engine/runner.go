package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/qmuntal/stateless"
	"github.com/sethvargo/go-retry"

	"github.com/floweave/floweave"
	"github.com/floweave/floweave/nodes"
)

// NodeState is the engine-internal lifecycle of one node within a run.
type NodeState string

const (
	NodePending   NodeState = "pending"
	NodeRunning   NodeState = "running"
	NodeSucceeded NodeState = "succeeded"
	NodeFailed    NodeState = "failed"
	NodeSkipped   NodeState = "skipped"
)

// RunStatus is the lifecycle of a run as a whole.
type RunStatus string

const (
	RunCreated   RunStatus = "created"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunAborted   RunStatus = "aborted"
)

const (
	triggerStart    = "start"
	triggerComplete = "complete"
	triggerAbort    = "abort"
)

// RunResult is the aggregate outcome of one run. The run reports success
// only if every planned node reached succeeded.
type RunResult struct {
	RunID       string                     `json:"run_id"`
	WorkflowID  string                     `json:"workflow_id"`
	Status      RunStatus                  `json:"status"`
	NodeStates  map[string]NodeState       `json:"node_states"`
	NodeOutputs map[string]nodes.Output    `json:"node_outputs,omitempty"`
	NodeErrors  map[string]*ExecutionError `json:"node_errors,omitempty"`
}

// Succeeded reports whether the run completed with every planned node in
// the succeeded state.
func (r *RunResult) Succeeded() bool {
	if r.Status != RunCompleted {
		return false
	}
	for _, st := range r.NodeStates {
		if st == NodeFailed {
			return false
		}
	}
	return true
}

// FailedNodes lists the ids of nodes that ended in the failed state.
func (r *RunResult) FailedNodes() []string {
	var ids []string
	for id, st := range r.NodeStates {
		if st == NodeFailed {
			ids = append(ids, id)
		}
	}
	return ids
}

// Runner drives one workflow run at a time through its planned node
// order. Each Run call owns a fresh run state; a Runner itself carries
// only configuration and may be shared.
type Runner struct {
	registry    *nodes.Registry
	sink        floweave.EventSink
	log         *slog.Logger
	nodeTimeout time.Duration
	maxAttempts uint64
	baseBackoff time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithEventSink routes node status transitions to sink.
func WithEventSink(sink floweave.EventSink) Option {
	return func(r *Runner) { r.sink = sink }
}

// WithLogger sets the runner's logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Runner) { r.log = log }
}

// WithNodeTimeout sets the default per-node execution timeout. Node
// configs may override it. 0 disables the default timeout.
func WithNodeTimeout(d time.Duration) Option {
	return func(r *Runner) { r.nodeTimeout = d }
}

// WithRetry bounds per-node retries: maxAttempts total attempts with
// exponential backoff starting at base.
func WithRetry(maxAttempts uint64, base time.Duration) Option {
	return func(r *Runner) {
		if maxAttempts > 0 {
			r.maxAttempts = maxAttempts
		}
		if base > 0 {
			r.baseBackoff = base
		}
	}
}

// NewRunner returns a Runner dispatching through the given registry.
func NewRunner(registry *nodes.Registry, opts ...Option) *Runner {
	r := &Runner{
		registry:    registry,
		sink:        floweave.NopSink{},
		log:         slog.Default(),
		nodeTimeout: 30 * time.Second,
		maxAttempts: 1,
		baseBackoff: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// runState is the mutable state of one run. It exists only inside a Run
// call and is never shared across runs.
type runState struct {
	result *RunResult
	// outputs by node id, recorded only after the node succeeded.
	outputs map[string]nodes.Output
	// completed lists succeeded node ids in execution order; input
	// resolution walks it so the last writer by plan order wins.
	completed []string
}

// Run executes a validated workflow from its trigger node, feeding the
// trigger payload into the trigger handler. Per-node failures never
// escape the run: the returned result enumerates node states and errors.
// The only non-nil error returns are ErrNoTrigger, a defensive planning
// failure, and ErrRunAborted when cancellation was observed.
func (r *Runner) Run(ctx context.Context, vw *floweave.ValidatedWorkflow, trigger any) (*RunResult, error) {
	startID, ok := vw.TriggerID()
	if !ok {
		return nil, ErrNoTrigger
	}

	plan, err := BuildPlan(vw, startID)
	if err != nil {
		return nil, err
	}

	wf := vw.Workflow()
	st := &runState{
		result: &RunResult{
			RunID:       uuid.NewString(),
			WorkflowID:  wf.ID,
			Status:      RunCreated,
			NodeStates:  make(map[string]NodeState, len(wf.Nodes)),
			NodeOutputs: make(map[string]nodes.Output),
			NodeErrors:  make(map[string]*ExecutionError),
		},
		outputs: make(map[string]nodes.Output),
	}
	for _, n := range wf.Nodes {
		st.result.NodeStates[n.ID] = NodePending
	}
	for _, id := range plan.Unreachable {
		st.result.NodeStates[id] = NodeSkipped
	}

	fsm := stateless.NewStateMachine(RunCreated)
	fsm.Configure(RunCreated).Permit(triggerStart, RunRunning)
	fsm.Configure(RunRunning).
		Permit(triggerComplete, RunCompleted).
		Permit(triggerAbort, RunAborted)

	if err := fsm.Fire(triggerStart); err != nil {
		return nil, err
	}
	st.result.Status = RunRunning

	log := r.log.With("workflow_id", wf.ID, "run_id", st.result.RunID)
	log.Info("run started", "planned", len(plan.Order), "unreachable", len(plan.Unreachable))

	// The trigger executes first; planned order deliberately excludes it.
	r.executeNode(ctx, vw, st, startID, trigger)

	for _, id := range plan.Order {
		if ctx.Err() != nil {
			r.abort(st, fsm, id, plan)
			log.Warn("run aborted", "cause", context.Cause(ctx))
			return st.result, ErrRunAborted
		}
		if st.result.NodeStates[id] == NodeSkipped {
			continue
		}
		r.executeNode(ctx, vw, st, id, trigger)
	}

	if err := fsm.Fire(triggerComplete); err != nil {
		return nil, err
	}
	st.result.Status = RunCompleted
	log.Info("run completed", "succeeded", st.result.Succeeded())
	return st.result, nil
}

// abort marks every node that has not run yet as skipped and moves the
// run to the aborted state.
func (r *Runner) abort(st *runState, fsm *stateless.StateMachine, current string, plan *Plan) {
	remaining := false
	for _, id := range plan.Order {
		if id == current {
			remaining = true
		}
		if remaining && st.result.NodeStates[id] == NodePending {
			st.result.NodeStates[id] = NodeSkipped
		}
	}
	_ = fsm.Fire(triggerAbort)
	st.result.Status = RunAborted
}

// executeNode runs one node through the registry with timeout and retry,
// records the outcome, and on failure skips everything downstream.
func (r *Runner) executeNode(ctx context.Context, vw *floweave.ValidatedWorkflow, st *runState, id string, trigger any) {
	spec, _ := vw.Workflow().Node(id)
	cfg := vw.Config(id)

	st.result.NodeStates[id] = NodeRunning
	r.sink.Emit(ctx, floweave.StatusEvent{
		WorkflowID: st.result.WorkflowID,
		RunID:      st.result.RunID,
		NodeID:     id,
		Status:     floweave.StatusLoading,
	})

	call := nodes.Call{
		NodeID:  id,
		Config:  cfg,
		Input:   r.resolveInput(vw, st, id),
		Trigger: trigger,
	}

	timeout := r.nodeTimeout
	if tc, ok := cfg.(interface{ Timeout() time.Duration }); ok && tc.Timeout() > 0 {
		timeout = tc.Timeout()
	}
	execCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var out nodes.Output
	backoff := retry.WithMaxRetries(r.maxAttempts-1, retry.NewExponential(r.baseBackoff))
	err := retry.Do(execCtx, backoff, func(c context.Context) error {
		var execErr error
		out, execErr = r.registry.Execute(c, spec.Kind, call)
		if execErr != nil {
			return retry.RetryableError(execErr)
		}
		return nil
	})

	if err != nil {
		kind := HandlerFault
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			kind = ExecutionTimeout
		}
		execErr := &ExecutionError{Kind: kind, NodeID: id, Err: err}
		st.result.NodeStates[id] = NodeFailed
		st.result.NodeErrors[id] = execErr
		r.log.Error("node failed", "node_id", id, "kind", string(kind), "error", err)
		r.sink.Emit(ctx, floweave.StatusEvent{
			WorkflowID: st.result.WorkflowID,
			RunID:      st.result.RunID,
			NodeID:     id,
			Status:     floweave.StatusError,
		})
		r.skipDownstream(vw, st, id)
		return
	}

	st.result.NodeStates[id] = NodeSucceeded
	st.result.NodeOutputs[id] = out
	st.outputs[id] = out
	st.completed = append(st.completed, id)
	r.sink.Emit(ctx, floweave.StatusEvent{
		WorkflowID: st.result.WorkflowID,
		RunID:      st.result.RunID,
		NodeID:     id,
		Status:     floweave.StatusSuccess,
	})
}

// resolveInput merges the outputs of a node's in-edge sources, keyed by
// the destination port. Sources are walked in completion order and edges
// in insertion order, so when several edges feed the same port the last
// writer by plan order wins.
func (r *Runner) resolveInput(vw *floweave.ValidatedWorkflow, st *runState, id string) map[floweave.Port]any {
	input := make(map[floweave.Port]any)
	for _, src := range st.completed {
		for _, e := range vw.OutEdges(src) {
			if e.ToNode != id {
				continue
			}
			if out, has := st.outputs[src]; has {
				if v, ok := out[e.FromPort]; ok {
					input[e.ToPort] = v
				}
			}
		}
	}
	return input
}

// skipDownstream marks every node reachable forward from the failed node
// as skipped. Independent branches are untouched and keep executing.
func (r *Runner) skipDownstream(vw *floweave.ValidatedWorkflow, st *runState, failedID string) {
	frontier := []string{failedID}
	seen := map[string]bool{failedID: true}
	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		for _, e := range vw.OutEdges(id) {
			if seen[e.ToNode] {
				continue
			}
			seen[e.ToNode] = true
			if st.result.NodeStates[e.ToNode] == NodePending {
				st.result.NodeStates[e.ToNode] = NodeSkipped
				st.result.NodeErrors[e.ToNode] = &ExecutionError{
					Kind:   UpstreamFailed,
					NodeID: e.ToNode,
					Err:    errors.New("engine: upstream node " + failedID + " failed"),
				}
			}
			frontier = append(frontier, e.ToNode)
		}
	}
}
