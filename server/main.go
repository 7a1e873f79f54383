package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/floweave/floweave"
	"github.com/floweave/floweave/engine"
	"github.com/floweave/floweave/nodes"
	"github.com/floweave/floweave/postgres"
)

// slogSink forwards node status transitions to the structured log. A real
// deployment would push them to the editor over a live channel instead.
type slogSink struct {
	log *slog.Logger
}

func (s slogSink) Emit(_ context.Context, ev floweave.StatusEvent) {
	s.log.Info("node status",
		"workflow_id", ev.WorkflowID,
		"run_id", ev.RunID,
		"node_id", ev.NodeID,
		"status", string(ev.Status),
	)
}

func main() {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	var store floweave.Store = postgres.New(pool)

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	runner := engine.NewRunner(nodes.Builtin(),
		engine.WithLogger(logger),
		engine.WithEventSink(slogSink{log: logger}),
		engine.WithNodeTimeout(30*time.Second),
		engine.WithRetry(3, 500*time.Millisecond),
	)

	app := fiber.New()

	// ── Schema ────────────────────────────────────────────────────────
	app.Post("/schema", func(c fiber.Ctx) error {
		if err := store.CreateSchema(c.Context()); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"message": "schema created"})
	})

	app.Delete("/schema", func(c fiber.Ctx) error {
		if err := store.DropSchema(c.Context()); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"message": "schema dropped"})
	})

	// ── Workflows (bulk) ──────────────────────────────────────────────
	app.Post("/workflows", func(c fiber.Ctx) error {
		var w floweave.Workflow
		if err := c.Bind().JSON(&w); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
		}
		result, err := store.CreateWorkflow(c.Context(), &w)
		if errors.Is(err, floweave.ErrCycleDetected) {
			return c.Status(422).JSON(fiber.Map{"error": "cycle detected"})
		}
		if errors.Is(err, floweave.ErrDuplicateTrigger) {
			return c.Status(422).JSON(fiber.Map{"error": "workflow already has a manual-trigger node"})
		}
		if errors.Is(err, floweave.ErrDuplicateEdge) {
			return c.Status(422).JSON(fiber.Map{"error": "duplicate edge on the same port pair"})
		}
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(201).JSON(result)
	})

	app.Get("/workflows/:id", func(c fiber.Ctx) error {
		w, err := store.LoadGraph(c.Context(), c.Params("id"))
		if errors.Is(err, floweave.ErrWorkflowNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "workflow not found"})
		}
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(w)
	})

	app.Delete("/workflows/:id", func(c fiber.Ctx) error {
		if err := store.DeleteWorkflow(c.Context(), c.Params("id")); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.SendStatus(204)
	})

	// ── Execution ─────────────────────────────────────────────────────
	app.Post("/workflows/:id/run", func(c fiber.Ctx) error {
		var body struct {
			Trigger any `json:"trigger,omitempty"`
		}
		if len(c.Body()) > 0 {
			if err := c.Bind().JSON(&body); err != nil {
				return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
			}
		}

		w, err := store.LoadGraph(c.Context(), c.Params("id"))
		if errors.Is(err, floweave.ErrWorkflowNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "workflow not found"})
		}
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}

		validated, err := floweave.Validate(w)
		if err != nil {
			return c.Status(422).JSON(fiber.Map{"error": err.Error()})
		}

		result, err := runner.Run(c.Context(), validated, body.Trigger)
		if errors.Is(err, engine.ErrNoTrigger) {
			return c.Status(422).JSON(fiber.Map{"error": "workflow has no trigger node"})
		}
		if err != nil && !errors.Is(err, engine.ErrRunAborted) {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(result)
	})

	// ── Nodes ─────────────────────────────────────────────────────────
	app.Post("/workflows/:id/nodes", func(c fiber.Ctx) error {
		var node floweave.NodeSpec
		if err := c.Bind().JSON(&node); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
		}
		id, err := store.AddNode(c.Context(), c.Params("id"), &node)
		if errors.Is(err, floweave.ErrDuplicateTrigger) {
			return c.Status(422).JSON(fiber.Map{"error": "workflow already has a manual-trigger node"})
		}
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(201).JSON(fiber.Map{"id": id})
	})

	app.Get("/workflows/:id/nodes", func(c fiber.Ctx) error {
		list, err := store.ListNodes(c.Context(), c.Params("id"))
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(list)
	})

	app.Get("/nodes/:id", func(c fiber.Ctx) error {
		n, err := store.GetNode(c.Context(), c.Params("id"))
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		if n == nil {
			return c.Status(404).JSON(fiber.Map{"error": "node not found"})
		}
		return c.JSON(n)
	})

	app.Put("/nodes/:id", func(c fiber.Ctx) error {
		var node floweave.NodeSpec
		if err := c.Bind().JSON(&node); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
		}
		node.ID = c.Params("id")
		err := store.UpdateNode(c.Context(), &node)
		if errors.Is(err, floweave.ErrNodeNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "node not found"})
		}
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.SendStatus(204)
	})

	app.Delete("/nodes/:id", func(c fiber.Ctx) error {
		if err := store.DeleteNode(c.Context(), c.Params("id")); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.SendStatus(204)
	})

	// ── Edges ─────────────────────────────────────────────────────────
	app.Post("/workflows/:id/edges", func(c fiber.Ctx) error {
		var edge floweave.Edge
		if err := c.Bind().JSON(&edge); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
		}
		id, err := store.AddEdge(c.Context(), c.Params("id"), &edge)
		if errors.Is(err, floweave.ErrCycleDetected) {
			return c.Status(422).JSON(fiber.Map{"error": "cycle detected"})
		}
		if errors.Is(err, floweave.ErrDuplicateEdge) {
			return c.Status(422).JSON(fiber.Map{"error": "duplicate edge on the same port pair"})
		}
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(201).JSON(fiber.Map{"id": id})
	})

	app.Get("/workflows/:id/edges", func(c fiber.Ctx) error {
		list, err := store.ListEdges(c.Context(), c.Params("id"))
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(list)
	})

	app.Get("/edges/:id", func(c fiber.Ctx) error {
		e, err := store.GetEdge(c.Context(), c.Params("id"))
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		if e == nil {
			return c.Status(404).JSON(fiber.Map{"error": "edge not found"})
		}
		return c.JSON(e)
	})

	app.Put("/edges/:id", func(c fiber.Ctx) error {
		var edge floweave.Edge
		if err := c.Bind().JSON(&edge); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
		}
		edge.ID = c.Params("id")
		err := store.UpdateEdge(c.Context(), &edge)
		if errors.Is(err, floweave.ErrEdgeNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "edge not found"})
		}
		if errors.Is(err, floweave.ErrCycleDetected) {
			return c.Status(422).JSON(fiber.Map{"error": "cycle detected"})
		}
		if errors.Is(err, floweave.ErrDuplicateEdge) {
			return c.Status(422).JSON(fiber.Map{"error": "duplicate edge on the same port pair"})
		}
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.SendStatus(204)
	})

	app.Delete("/edges/:id", func(c fiber.Ctx) error {
		if err := store.DeleteEdge(c.Context(), c.Params("id")); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.SendStatus(204)
	})

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":3000"
	}
	log.Fatal(app.Listen(addr))
}
