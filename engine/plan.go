package engine

import (
	"sort"

	"github.com/floweave/floweave"
)

// Plan is the execution schedule for one run: the nodes reachable from
// the start node in an order where every node appears strictly after all
// of its in-edge sources.
type Plan struct {
	StartID string
	// Order lists the planned node ids, excluding the start node itself.
	Order []string
	// Unreachable lists nodes with no forward path from the start node.
	// They are marked skipped before execution begins.
	Unreachable []string
}

// BuildPlan computes forward reachability from startNodeID and then a
// Kahn topological ordering restricted to the reachable subgraph. When
// several successors become ready from the same predecessor they are
// scheduled in edge-insertion order, which keeps plans deterministic.
//
// Validation already rejects cyclic graphs; the re-check here is
// defensive and returns a *floweave.CycleError if it ever fires.
func BuildPlan(vw *floweave.ValidatedWorkflow, startNodeID string) (*Plan, error) {
	reachable := map[string]bool{startNodeID: true}
	frontier := []string{startNodeID}
	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		for _, e := range vw.OutEdges(id) {
			if !reachable[e.ToNode] {
				reachable[e.ToNode] = true
				frontier = append(frontier, e.ToNode)
			}
		}
	}

	// In-degree restricted to edges inside the reachable subgraph; edges
	// arriving from unreachable nodes will never resolve and must not
	// block scheduling.
	indeg := make(map[string]int, len(reachable))
	for id := range reachable {
		indeg[id] = 0
	}
	for id := range reachable {
		for _, e := range vw.OutEdges(id) {
			if reachable[e.ToNode] {
				indeg[e.ToNode]++
			}
		}
	}

	order := make([]string, 0, len(reachable)-1)
	queue := []string{startNodeID}
	scheduled := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		scheduled++
		if id != startNodeID {
			order = append(order, id)
		}
		for _, e := range vw.OutEdges(id) {
			if !reachable[e.ToNode] {
				continue
			}
			indeg[e.ToNode]--
			if indeg[e.ToNode] == 0 {
				queue = append(queue, e.ToNode)
			}
		}
	}

	if scheduled != len(reachable) {
		var stuck []string
		for id, d := range indeg {
			if d > 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		return nil, &floweave.CycleError{NodeIDs: stuck}
	}

	var unreachable []string
	for _, n := range vw.Workflow().Nodes {
		if !reachable[n.ID] {
			unreachable = append(unreachable, n.ID)
		}
	}

	return &Plan{StartID: startNodeID, Order: order, Unreachable: unreachable}, nil
}
