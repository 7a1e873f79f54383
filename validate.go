package floweave

import (
	"errors"
	"fmt"
)

// ValidatedWorkflow is a workflow that passed Validate. It carries the
// decoded per-node configs and the adjacency lists the planner and runner
// consume. Edge order within a node's out-edges follows insertion order.
type ValidatedWorkflow struct {
	workflow *Workflow
	configs  map[string]any
	outEdges map[string][]Edge
	inEdges  map[string][]Edge
}

// Workflow returns the underlying graph snapshot.
func (v *ValidatedWorkflow) Workflow() *Workflow { return v.workflow }

// Config returns the decoded, kind-typed config for a node.
func (v *ValidatedWorkflow) Config(nodeID string) any { return v.configs[nodeID] }

// OutEdges returns a node's outgoing edges in insertion order.
func (v *ValidatedWorkflow) OutEdges(nodeID string) []Edge { return v.outEdges[nodeID] }

// InEdges returns a node's incoming edges in insertion order.
func (v *ValidatedWorkflow) InEdges(nodeID string) []Edge { return v.inEdges[nodeID] }

// TriggerID returns the id of the trigger node.
func (v *ValidatedWorkflow) TriggerID() (string, bool) { return v.workflow.TriggerID() }

// Validate checks the structural invariants of a workflow graph and
// returns a ValidatedWorkflow ready for planning. It is a pure function:
// calling it twice on the same graph yields identical results. All
// violations are collected and returned joined; a cycle is reported as a
// *CycleError.
func Validate(w *Workflow) (*ValidatedWorkflow, error) {
	var errs []error

	nodeByID := make(map[string]*NodeSpec, len(w.Nodes))
	configs := make(map[string]any, len(w.Nodes))
	triggers := 0
	for i := range w.Nodes {
		n := &w.Nodes[i]
		if _, dup := nodeByID[n.ID]; dup {
			errs = append(errs, &ValidationError{Code: CodeDuplicateNode, NodeID: n.ID, Detail: "duplicate node id"})
			continue
		}
		nodeByID[n.ID] = n

		if !n.Kind.Known() {
			errs = append(errs, &ValidationError{Code: CodeUnknownKind, NodeID: n.ID, Detail: fmt.Sprintf("kind %q", n.Kind)})
			continue
		}
		if n.Kind == KindInitial {
			errs = append(errs, &ValidationError{Code: CodePlaceholderNode, NodeID: n.ID, Detail: "placeholder node must be replaced before execution"})
			continue
		}
		if n.Kind.IsTrigger() {
			triggers++
			if triggers > 1 {
				errs = append(errs, &ValidationError{Code: CodeDuplicateTrigger, NodeID: n.ID})
			}
		}
		cfg, err := DecodeConfig(n.Kind, n.Config)
		if err != nil {
			errs = append(errs, &ValidationError{Code: CodeBadConfig, NodeID: n.ID, Detail: err.Error()})
			continue
		}
		configs[n.ID] = cfg
	}

	outEdges := make(map[string][]Edge)
	inEdges := make(map[string][]Edge)
	seenPair := make(map[Edge]bool)
	for _, raw := range w.Edges {
		e := raw.normalized()

		from, okFrom := nodeByID[e.FromNode]
		if !okFrom {
			errs = append(errs, &ValidationError{Code: CodeDanglingEdge, EdgeID: e.ID, Detail: fmt.Sprintf("from_node %q does not exist", e.FromNode)})
		}
		to, okTo := nodeByID[e.ToNode]
		if !okTo {
			errs = append(errs, &ValidationError{Code: CodeDanglingEdge, EdgeID: e.ID, Detail: fmt.Sprintf("to_node %q does not exist", e.ToNode)})
		}
		if !okFrom || !okTo {
			continue
		}

		if !portIn(from.Kind.OutputPorts(), e.FromPort) {
			errs = append(errs, &ValidationError{Code: CodeInvalidPort, EdgeID: e.ID, NodeID: from.ID, Detail: fmt.Sprintf("kind %q has no output port %q", from.Kind, e.FromPort)})
			continue
		}
		if !portIn(to.Kind.InputPorts(), e.ToPort) {
			errs = append(errs, &ValidationError{Code: CodeInvalidPort, EdgeID: e.ID, NodeID: to.ID, Detail: fmt.Sprintf("kind %q has no input port %q", to.Kind, e.ToPort)})
			continue
		}

		pair := Edge{FromNode: e.FromNode, FromPort: e.FromPort, ToNode: e.ToNode, ToPort: e.ToPort}
		if seenPair[pair] {
			errs = append(errs, &ValidationError{Code: CodeDuplicateEdge, EdgeID: e.ID, Detail: fmt.Sprintf("%s.%s -> %s.%s", e.FromNode, e.FromPort, e.ToNode, e.ToPort)})
			continue
		}
		seenPair[pair] = true

		outEdges[e.FromNode] = append(outEdges[e.FromNode], e)
		inEdges[e.ToNode] = append(inEdges[e.ToNode], e)
	}

	if cyc := detectCycle(w.Nodes, outEdges); cyc != nil {
		errs = append(errs, cyc)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return &ValidatedWorkflow{
		workflow: w,
		configs:  configs,
		outEdges: outEdges,
		inEdges:  inEdges,
	}, nil
}

func portIn(ports []Port, p Port) bool {
	for _, candidate := range ports {
		if candidate == p {
			return true
		}
	}
	return false
}

// detectCycle runs a three-color DFS over the graph. On the first back
// edge it returns a *CycleError naming the nodes on the current stack
// from the revisited node onward.
func detectCycle(nodes []NodeSpec, outEdges map[string][]Edge) *CycleError {
	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)

	state := make(map[string]int, len(nodes))
	for _, n := range nodes {
		state[n.ID] = unvisited
	}

	var stack []string
	var found []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		state[id] = visiting
		stack = append(stack, id)
		for _, e := range outEdges[id] {
			switch state[e.ToNode] {
			case visiting:
				// Slice the stack from the revisited node to name only the
				// nodes actually on the cycle.
				for i, sid := range stack {
					if sid == e.ToNode {
						found = append([]string(nil), stack[i:]...)
						break
					}
				}
				return true
			case unvisited:
				if dfs(e.ToNode) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = visited
		return false
	}

	for _, n := range nodes {
		if state[n.ID] == unvisited {
			if dfs(n.ID) {
				return &CycleError{NodeIDs: found}
			}
		}
	}
	return nil
}
