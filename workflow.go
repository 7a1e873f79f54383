package floweave

import "encoding/json"

// NodeKind identifies the behavior of a node. The set is closed: graphs
// containing an unknown kind fail validation before any run starts.
type NodeKind string

const (
	// KindManualTrigger starts a run when fired by hand. At most one per
	// workflow.
	KindManualTrigger NodeKind = "manual-trigger"
	// KindHTTPRequest performs an HTTP call described by its config.
	KindHTTPRequest NodeKind = "http-request"
	// KindInitial is the placeholder created with an empty workflow. It is
	// never executable and must be replaced before a run.
	KindInitial NodeKind = "initial"
)

// Known reports whether k is one of the closed set of node kinds.
func (k NodeKind) Known() bool {
	switch k {
	case KindManualTrigger, KindHTTPRequest, KindInitial:
		return true
	}
	return false
}

// IsTrigger reports whether nodes of this kind start a run. Trigger kinds
// expose only an output port.
func (k NodeKind) IsTrigger() bool {
	return k == KindManualTrigger
}

// InputPorts returns the input ports nodes of this kind accept.
func (k NodeKind) InputPorts() []Port {
	if k.IsTrigger() || k == KindInitial {
		return nil
	}
	return []Port{PortMain}
}

// OutputPorts returns the output ports nodes of this kind expose.
func (k NodeKind) OutputPorts() []Port {
	if k == KindInitial {
		return nil
	}
	return []Port{PortMain}
}

// Port is a named input or output handle on a node.
type Port string

// PortMain is the default port on both ends of an edge.
const PortMain Port = "main"

// Workflow is a directed acyclic graph of typed nodes. One Workflow value
// is an immutable snapshot for a single run; concurrent edits to the
// persisted record never affect an in-flight run.
type Workflow struct {
	ID    string     `json:"id"`
	Name  string     `json:"name,omitempty"`
	Nodes []NodeSpec `json:"nodes"`
	Edges []Edge     `json:"edges"`
}

// Node returns the node with the given id, if present.
func (w *Workflow) Node(id string) (*NodeSpec, bool) {
	for i := range w.Nodes {
		if w.Nodes[i].ID == id {
			return &w.Nodes[i], true
		}
	}
	return nil, false
}

// TriggerID returns the id of the workflow's trigger node, if any.
func (w *Workflow) TriggerID() (string, bool) {
	for i := range w.Nodes {
		if w.Nodes[i].Kind.IsTrigger() {
			return w.Nodes[i].ID, true
		}
	}
	return "", false
}

// NodeSpec is a vertex in the workflow graph.
// Ref is a temporary key used only during CreateWorkflow for edge wiring —
// it is never persisted.
type NodeSpec struct {
	ID       string          `json:"id,omitempty"`
	Ref      string          `json:"ref,omitempty"`
	Kind     NodeKind        `json:"kind"`
	Config   json.RawMessage `json:"config,omitempty"`
	Position Position        `json:"position"`
}

// Position is the node's coordinate on the editor canvas. Irrelevant to
// execution, persisted for the UI.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Edge is a directed connection from one node's output port to another
// node's input port.
// FromNodeRef / ToNodeRef are temporary keys used only during
// CreateWorkflow — they are never persisted.
type Edge struct {
	ID          string `json:"id,omitempty"`
	FromNode    string `json:"from_node_id,omitempty"`
	FromPort    Port   `json:"from_port,omitempty"`
	ToNode      string `json:"to_node_id,omitempty"`
	ToPort      Port   `json:"to_port,omitempty"`
	FromNodeRef string `json:"from_node_ref,omitempty"`
	ToNodeRef   string `json:"to_node_ref,omitempty"`
}

// normalized returns the edge with empty ports replaced by the default.
func (e Edge) normalized() Edge {
	if e.FromPort == "" {
		e.FromPort = PortMain
	}
	if e.ToPort == "" {
		e.ToPort = PortMain
	}
	return e
}
