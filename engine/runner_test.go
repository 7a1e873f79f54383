package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floweave/floweave"
	"github.com/floweave/floweave/nodes"
)

// script dispatches per-node test behavior. Nodes without an entry
// succeed and emit their own id on the main port.
type script map[string]func(ctx context.Context, call nodes.Call) (nodes.Output, error)

func (s script) Execute(ctx context.Context, call nodes.Call) (nodes.Output, error) {
	if f, ok := s[call.NodeID]; ok {
		return f(ctx, call)
	}
	return nodes.Output{floweave.PortMain: call.NodeID}, nil
}

func testRegistry(h nodes.Handler) *nodes.Registry {
	r := nodes.NewRegistry()
	r.Register(floweave.KindManualTrigger, nodes.ManualTrigger{})
	r.Register(floweave.KindHTTPRequest, h)
	return r
}

type recordSink struct {
	mu     sync.Mutex
	events []floweave.StatusEvent
}

func (s *recordSink) Emit(_ context.Context, ev floweave.StatusEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordSink) statuses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.NodeID+":"+string(ev.Status))
	}
	return out
}

func TestRunnerHappyPath(t *testing.T) {
	vw := validated(t,
		[]floweave.NodeSpec{trigger("T"), action("N")},
		[]floweave.Edge{edge("T", "N")},
	)

	sink := &recordSink{}
	runner := NewRunner(testRegistry(script{}), WithEventSink(sink))

	res, err := runner.Run(context.Background(), vw, map[string]any{"fired": true})
	require.NoError(t, err)

	assert.Equal(t, RunCompleted, res.Status)
	assert.True(t, res.Succeeded())
	assert.Equal(t, NodeSucceeded, res.NodeStates["T"])
	assert.Equal(t, NodeSucceeded, res.NodeStates["N"])
	assert.Empty(t, res.NodeErrors)
	assert.NotEmpty(t, res.RunID)

	assert.Equal(t, []string{
		"T:loading", "T:success",
		"N:loading", "N:success",
	}, sink.statuses())
}

func TestRunnerTriggerPayloadFlowsDownstream(t *testing.T) {
	vw := validated(t,
		[]floweave.NodeSpec{trigger("T"), action("N")},
		[]floweave.Edge{edge("T", "N")},
	)

	var got any
	handlers := script{
		"N": func(_ context.Context, call nodes.Call) (nodes.Output, error) {
			got = call.Input[floweave.PortMain]
			return nodes.Output{floweave.PortMain: "done"}, nil
		},
	}

	runner := NewRunner(testRegistry(handlers))
	res, err := runner.Run(context.Background(), vw, "payload-42")
	require.NoError(t, err)
	require.True(t, res.Succeeded())
	assert.Equal(t, "payload-42", got)
}

func TestRunnerFailureSkipsDownstream(t *testing.T) {
	vw := validated(t,
		[]floweave.NodeSpec{trigger("T"), action("A"), action("B")},
		[]floweave.Edge{edge("T", "A"), edge("A", "B")},
	)

	boom := errors.New("boom")
	handlers := script{
		"A": func(context.Context, nodes.Call) (nodes.Output, error) { return nil, boom },
	}

	sink := &recordSink{}
	runner := NewRunner(testRegistry(handlers), WithEventSink(sink))

	res, err := runner.Run(context.Background(), vw, nil)
	require.NoError(t, err)

	// The run completes; the failure is confined to A and its successors.
	assert.Equal(t, RunCompleted, res.Status)
	assert.False(t, res.Succeeded())
	assert.Equal(t, NodeFailed, res.NodeStates["A"])
	assert.Equal(t, NodeSkipped, res.NodeStates["B"])
	assert.Equal(t, []string{"A"}, res.FailedNodes())

	require.Contains(t, res.NodeErrors, "A")
	assert.Equal(t, HandlerFault, res.NodeErrors["A"].Kind)
	assert.ErrorIs(t, res.NodeErrors["A"], boom)

	require.Contains(t, res.NodeErrors, "B")
	assert.Equal(t, UpstreamFailed, res.NodeErrors["B"].Kind)

	// Skipped nodes emit no event: the UI leaves them at initial.
	assert.Equal(t, []string{
		"T:loading", "T:success",
		"A:loading", "A:error",
	}, sink.statuses())
}

func TestRunnerIndependentBranchSurvivesFailure(t *testing.T) {
	vw := validated(t,
		[]floweave.NodeSpec{trigger("T"), action("A"), action("B")},
		[]floweave.Edge{edge("T", "A"), edge("T", "B")},
	)

	handlers := script{
		"A": func(context.Context, nodes.Call) (nodes.Output, error) {
			return nil, errors.New("branch a broke")
		},
	}

	runner := NewRunner(testRegistry(handlers))
	res, err := runner.Run(context.Background(), vw, nil)
	require.NoError(t, err)

	assert.Equal(t, RunCompleted, res.Status)
	assert.Equal(t, NodeFailed, res.NodeStates["A"])
	assert.Equal(t, NodeSucceeded, res.NodeStates["B"])
}

func TestRunnerTriggerOnly(t *testing.T) {
	vw := validated(t, []floweave.NodeSpec{trigger("T")}, nil)

	runner := NewRunner(testRegistry(script{}))
	res, err := runner.Run(context.Background(), vw, nil)
	require.NoError(t, err)

	assert.Equal(t, RunCompleted, res.Status)
	assert.True(t, res.Succeeded())
	assert.Equal(t, NodeSucceeded, res.NodeStates["T"])
}

func TestRunnerUnreachableNodesSkipped(t *testing.T) {
	vw := validated(t,
		[]floweave.NodeSpec{trigger("T"), action("A"), action("X")},
		[]floweave.Edge{edge("T", "A")},
	)

	sink := &recordSink{}
	runner := NewRunner(testRegistry(script{}), WithEventSink(sink))

	res, err := runner.Run(context.Background(), vw, nil)
	require.NoError(t, err)

	assert.Equal(t, NodeSkipped, res.NodeStates["X"])
	assert.True(t, res.Succeeded())
	assert.NotContains(t, sink.statuses(), "X:loading")
}

func TestRunnerCancellationAbortsBetweenNodes(t *testing.T) {
	vw := validated(t,
		[]floweave.NodeSpec{trigger("T"), action("A"), action("B")},
		[]floweave.Edge{edge("T", "A"), edge("A", "B")},
	)

	ctx, cancel := context.WithCancel(context.Background())
	handlers := script{
		"A": func(_ context.Context, call nodes.Call) (nodes.Output, error) {
			// Cancel mid-run: the in-flight node finishes naturally and the
			// abort is observed before the next dispatch.
			cancel()
			return nodes.Output{floweave.PortMain: "a"}, nil
		},
	}

	runner := NewRunner(testRegistry(handlers))
	res, err := runner.Run(ctx, vw, nil)
	require.ErrorIs(t, err, ErrRunAborted)

	assert.Equal(t, RunAborted, res.Status)
	assert.Equal(t, NodeSucceeded, res.NodeStates["A"])
	assert.Equal(t, NodeSkipped, res.NodeStates["B"])
	assert.False(t, res.Succeeded())
}

func TestRunnerNodeTimeout(t *testing.T) {
	vw := validated(t,
		[]floweave.NodeSpec{trigger("T"), action("A")},
		[]floweave.Edge{edge("T", "A")},
	)

	handlers := script{
		"A": func(ctx context.Context, call nodes.Call) (nodes.Output, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}

	runner := NewRunner(testRegistry(handlers), WithNodeTimeout(30*time.Millisecond))
	res, err := runner.Run(context.Background(), vw, nil)
	require.NoError(t, err)

	assert.Equal(t, RunCompleted, res.Status)
	assert.Equal(t, NodeFailed, res.NodeStates["A"])
	require.Contains(t, res.NodeErrors, "A")
	assert.Equal(t, ExecutionTimeout, res.NodeErrors["A"].Kind)
}

func TestRunnerRetriesBeforeFailing(t *testing.T) {
	vw := validated(t,
		[]floweave.NodeSpec{trigger("T"), action("A")},
		[]floweave.Edge{edge("T", "A")},
	)

	attempts := 0
	handlers := script{
		"A": func(context.Context, nodes.Call) (nodes.Output, error) {
			attempts++
			if attempts < 3 {
				return nil, errors.New("flaky")
			}
			return nodes.Output{floweave.PortMain: "ok"}, nil
		},
	}

	runner := NewRunner(testRegistry(handlers), WithRetry(3, time.Millisecond))
	res, err := runner.Run(context.Background(), vw, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, attempts)
	assert.Equal(t, NodeSucceeded, res.NodeStates["A"])
	assert.True(t, res.Succeeded())
}

func TestRunnerHandlerPanicBecomesFault(t *testing.T) {
	vw := validated(t,
		[]floweave.NodeSpec{trigger("T"), action("A"), action("B")},
		[]floweave.Edge{edge("T", "A"), edge("T", "B")},
	)

	handlers := script{
		"A": func(context.Context, nodes.Call) (nodes.Output, error) {
			panic("handler bug")
		},
	}

	runner := NewRunner(testRegistry(handlers))
	res, err := runner.Run(context.Background(), vw, nil)
	require.NoError(t, err)

	// The panic is contained: the run completes and B still executes.
	assert.Equal(t, RunCompleted, res.Status)
	assert.Equal(t, NodeFailed, res.NodeStates["A"])
	assert.Equal(t, HandlerFault, res.NodeErrors["A"].Kind)
	assert.Equal(t, NodeSucceeded, res.NodeStates["B"])
}

func TestRunnerMergeLastWriterWinsByPlanOrder(t *testing.T) {
	vw := validated(t,
		[]floweave.NodeSpec{trigger("T"), action("A"), action("B"), action("C")},
		[]floweave.Edge{
			edge("T", "A"), edge("T", "B"),
			edge("A", "C"), edge("B", "C"),
		},
	)

	var merged any
	handlers := script{
		"A": func(context.Context, nodes.Call) (nodes.Output, error) {
			return nodes.Output{floweave.PortMain: "from-a"}, nil
		},
		"B": func(context.Context, nodes.Call) (nodes.Output, error) {
			return nodes.Output{floweave.PortMain: "from-b"}, nil
		},
		"C": func(_ context.Context, call nodes.Call) (nodes.Output, error) {
			merged = call.Input[floweave.PortMain]
			return nodes.Output{floweave.PortMain: "done"}, nil
		},
	}

	runner := NewRunner(testRegistry(handlers))
	res, err := runner.Run(context.Background(), vw, nil)
	require.NoError(t, err)
	require.True(t, res.Succeeded())

	// B completes after A in plan order, so its value wins the port.
	assert.Equal(t, "from-b", merged)
}

func TestRunnerOutputsAvailableDownstreamOnly(t *testing.T) {
	vw := validated(t,
		[]floweave.NodeSpec{trigger("T"), action("A"), action("B")},
		[]floweave.Edge{edge("T", "A"), edge("A", "B")},
	)

	var bInput any
	handlers := script{
		"A": func(context.Context, nodes.Call) (nodes.Output, error) {
			return nodes.Output{floweave.PortMain: map[string]any{"n": 1}}, nil
		},
		"B": func(_ context.Context, call nodes.Call) (nodes.Output, error) {
			bInput = call.Input[floweave.PortMain]
			return nodes.Output{floweave.PortMain: "done"}, nil
		},
	}

	runner := NewRunner(testRegistry(handlers))
	res, err := runner.Run(context.Background(), vw, nil)
	require.NoError(t, err)
	require.True(t, res.Succeeded())
	assert.Equal(t, map[string]any{"n": 1}, bInput)
	assert.Equal(t, nodes.Output{floweave.PortMain: map[string]any{"n": 1}}, res.NodeOutputs["A"])
}
