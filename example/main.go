package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/floweave/floweave"
	"github.com/floweave/floweave/engine"
	"github.com/floweave/floweave/nodes"
	"github.com/floweave/floweave/postgres"
)

// printSink prints status transitions the way the editor's node badges
// would show them.
type printSink struct{}

func (printSink) Emit(_ context.Context, ev floweave.StatusEvent) {
	fmt.Printf("  [%s] node %s -> %s\n", ev.RunID[:8], ev.NodeID, ev.Status)
}

func main() {
	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	// Wire up the postgres implementation behind the Store interface.
	var store floweave.Store = postgres.New(pool)

	// 1. Create tables
	if err := store.CreateSchema(ctx); err != nil {
		log.Fatalf("schema: %v", err)
	}
	fmt.Println("schema created")

	// ── Bulk insert using refs ────────────────────────────────────────
	wf := &floweave.Workflow{
		ID:   "fetch-todo",
		Name: "Fetch a todo",
		Nodes: []floweave.NodeSpec{
			{Ref: "start", Kind: floweave.KindManualTrigger, Position: floweave.Position{X: 0, Y: 0}},
			{Ref: "fetch", Kind: floweave.KindHTTPRequest, Position: floweave.Position{X: 280, Y: 0},
				Config: json.RawMessage(`{"url": "https://jsonplaceholder.typicode.com/todos/1", "method": "GET"}`)},
		},
		Edges: []floweave.Edge{
			{FromNodeRef: "start", ToNodeRef: "fetch"},
		},
	}

	created, err := store.CreateWorkflow(ctx, wf)
	if err != nil {
		log.Fatalf("create workflow: %v", err)
	}
	fmt.Println("workflow created (bulk with refs)")
	printJSON(created)

	// ── Load, validate, run ───────────────────────────────────────────
	graph, err := store.LoadGraph(ctx, "fetch-todo")
	if err != nil {
		log.Fatalf("load graph: %v", err)
	}

	validated, err := floweave.Validate(graph)
	if err != nil {
		log.Fatalf("validate: %v", err)
	}

	runner := engine.NewRunner(nodes.Builtin(),
		engine.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, nil))),
		engine.WithEventSink(printSink{}),
		engine.WithNodeTimeout(15*time.Second),
		engine.WithRetry(3, 500*time.Millisecond),
	)

	fmt.Println("\nrunning:")
	result, err := runner.Run(ctx, validated, map[string]any{"requested_by": "example"})
	if err != nil {
		log.Fatalf("run: %v", err)
	}
	fmt.Println("\nrun result:")
	printJSON(result)

	// ── Cleanup ───────────────────────────────────────────────────────
	if err := store.DeleteWorkflow(ctx, "fetch-todo"); err != nil {
		log.Fatalf("delete: %v", err)
	}
	fmt.Println("\nworkflow deleted")
}

func printJSON(v any) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}
