// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/shrutib31/soul-buddy/services/events"
)

var tracer = otel.Tracer("github.com/shrutib31/soul-buddy/services/graph")

// End is the terminal routing target.
const End = "__end__"

// maxExecutedSteps bounds one run. The real topology executes well under
// this even at the full revision ceiling; hitting it means a wiring bug.
const maxExecutedSteps = 64

// Step executes one named node. Steps never return errors and never
// panic the run: failures are reported through an Update carrying Error.
type Step func(ctx context.Context, state *ConversationState) Update

// Router picks the next node name after a step. Routers are pure reads
// of the state.
type Router func(state *ConversationState) string

type node struct {
	step   Step
	next   string
	router Router
}

// Executor runs a fixed step topology over one ConversationState.
//
// One executor is built at startup and shared by all turns; per-turn
// data lives entirely in the state passed to Run.
type Executor struct {
	nodes     map[string]*node
	start     string
	errorSink string
	logger    *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithLogger sets the structured logger for step execution.
func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger
	}
}

// NewExecutor creates an empty executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		nodes:  make(map[string]*node),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AddStep registers a named step.
func (e *Executor) AddStep(name string, step Step) error {
	if name == "" || name == End {
		return fmt.Errorf("graph: invalid step name %q", name)
	}
	if _, exists := e.nodes[name]; exists {
		return fmt.Errorf("graph: duplicate step %q", name)
	}
	e.nodes[name] = &node{step: step}
	return nil
}

// SetEdge sets the static successor of a step. To is End or another
// registered step.
func (e *Executor) SetEdge(from, to string) error {
	n, ok := e.nodes[from]
	if !ok {
		return fmt.Errorf("graph: unknown step %q", from)
	}
	n.next = to
	return nil
}

// SetRouter installs a conditional router on a step, replacing any
// static edge.
func (e *Executor) SetRouter(from string, router Router) error {
	n, ok := e.nodes[from]
	if !ok {
		return fmt.Errorf("graph: unknown step %q", from)
	}
	n.router = router
	return nil
}

// SetStart names the entry step.
func (e *Executor) SetStart(name string) error {
	if _, ok := e.nodes[name]; !ok {
		return fmt.Errorf("graph: unknown start step %q", name)
	}
	e.start = name
	return nil
}

// SetErrorSink names the step every run jumps to once the state carries
// an error. The sink itself still runs with the error present.
func (e *Executor) SetErrorSink(name string) error {
	if _, ok := e.nodes[name]; !ok {
		return fmt.Errorf("graph: unknown error sink %q", name)
	}
	e.errorSink = name
	return nil
}

// Run executes the topology over state until End. The returned error
// covers executor-level faults only (bad wiring, runaway loops); turn
// failures surface in state.Error and the rendered response.
func (e *Executor) Run(ctx context.Context, state *ConversationState, emitter *events.Emitter) error {
	if e.start == "" {
		return fmt.Errorf("graph: no start step configured")
	}

	ctx, span := tracer.Start(ctx, "graph.Run")
	defer span.End()

	current := e.start
	executed := 0
	for current != End {
		if executed >= maxExecutedSteps {
			return fmt.Errorf("graph: exceeded %d steps at %q, topology is cyclic", maxExecutedSteps, current)
		}
		executed++

		n, ok := e.nodes[current]
		if !ok {
			return fmt.Errorf("graph: route to unknown step %q", current)
		}

		update := e.runStep(ctx, current, n.step, state)
		state.apply(update)
		state.StepIndex++
		emitter.NodeComplete(current)

		if state.Error != "" && e.errorSink != "" && current != e.errorSink {
			e.logger.Warn("turn failed, routing to error sink",
				"step", current,
				"conversation_id", state.ConversationID,
				"error", state.Error)
			current = e.errorSink
			continue
		}

		switch {
		case n.router != nil:
			current = n.router(state)
		case n.next != "":
			current = n.next
		default:
			current = End
		}
	}

	span.SetAttributes(
		attribute.Int("graph.steps", executed),
		attribute.Int("graph.attempts", state.Attempt),
		attribute.Bool("graph.errored", state.Error != ""),
	)
	return nil
}

// runStep invokes one step with panic recovery. A panicking step fails
// the turn, never the process.
func (e *Executor) runStep(ctx context.Context, name string, step Step, state *ConversationState) (update Update) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("step panicked",
				"step", name,
				"conversation_id", state.ConversationID,
				"panic", r)
			update = ErrorUpdate(fmt.Sprintf("step %s panicked: %v", name, r))
		}
	}()

	ctx, span := tracer.Start(ctx, "graph.step."+name)
	defer span.End()
	span.SetAttributes(attribute.Int("graph.attempt", state.Attempt))

	return step(ctx, state)
}
