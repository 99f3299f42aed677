package flow

import (
	"context"
	"fmt"
)

// Graph is a directed graph of stages executed against a shared state.
// Transitions are keyed by (stage, action); a stage without an explicit
// edge for the returned action falls back to its ActionDefault edge.
//
// A Graph is immutable once built and safe for concurrent runs: every Run
// or Stream call traverses the same topology against a caller-owned state.
type Graph[S any] struct {
	start    string
	stages   map[string]Stage[S]
	edges    map[string]map[Action]string
	maxSteps int
}

// NewGraph creates an empty graph that begins traversal at the named stage
func NewGraph[S any](start string) *Graph[S] {
	return &Graph[S]{
		start:  start,
		stages: make(map[string]Stage[S]),
		edges:  make(map[string]map[Action]string),
	}
}

// AddStage registers a stage under its own name
func (g *Graph[S]) AddStage(s Stage[S]) *Graph[S] {
	g.stages[s.Name()] = s
	return g
}

// AddEdge connects a stage to a successor for a specific action.
// Use End as the target to terminate the traversal on that action.
func (g *Graph[S]) AddEdge(from string, action Action, to string) *Graph[S] {
	if g.edges[from] == nil {
		g.edges[from] = make(map[Action]string)
	}
	g.edges[from][action] = to
	return g
}

// SetMaxSteps bounds the number of stage executions in a single traversal.
// Zero means unbounded. This is a safety net for graphs with cycles.
func (g *Graph[S]) SetMaxSteps(n int) *Graph[S] {
	g.maxSteps = n
	return g
}

// Validate checks that the start stage exists and every edge references a
// registered stage or End
func (g *Graph[S]) Validate() error {
	if _, ok := g.stages[g.start]; !ok {
		return fmt.Errorf("start stage %q is not registered", g.start)
	}
	for from, outs := range g.edges {
		if _, ok := g.stages[from]; !ok {
			return fmt.Errorf("edge source %q is not registered", from)
		}
		for action, to := range outs {
			if to == End {
				continue
			}
			if _, ok := g.stages[to]; !ok {
				return fmt.Errorf("edge %q --%s--> %q targets an unknown stage", from, action, to)
			}
		}
	}
	return nil
}

// Run drives the graph to End, mutating state in place. It blocks until the
// traversal terminates and returns the first stage or transition error.
func (g *Graph[S]) Run(ctx context.Context, state *S) error {
	return g.traverse(ctx, state, nil)
}

// Stream executes the graph in a goroutine and returns a channel that yields
// one EventUpdate per completed stage, in execution order. On failure a final
// EventError is delivered before the channel closes. Streaming and blocking
// runs share the same traversal logic.
func (g *Graph[S]) Stream(ctx context.Context, state *S) <-chan Event[S] {
	events := make(chan Event[S])

	go func() {
		defer close(events)

		emit := func(ev Event[S]) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if err := g.traverse(ctx, state, emit); err != nil {
			emit(Event[S]{Type: EventError, Err: err})
		}
	}()

	return events
}

// traverse is the single transition loop behind Run and Stream. emit may be
// nil for blocking runs; when it returns false the consumer is gone and the
// traversal stops.
func (g *Graph[S]) traverse(ctx context.Context, state *S, emit func(Event[S]) bool) error {
	current := g.start
	steps := 0

	for current != End {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if g.maxSteps > 0 && steps >= g.maxSteps {
			return fmt.Errorf("traversal aborted after %d steps at stage %q", steps, current)
		}

		stage, ok := g.stages[current]
		if !ok {
			return fmt.Errorf("stage %q is not registered", current)
		}

		update, action, err := stage.Run(ctx, state)
		if err != nil {
			return fmt.Errorf("stage %q: %w", current, err)
		}
		if update != nil {
			update.Apply(state)
		}
		steps++

		// Deliver the stage's partial output before evaluating the
		// next transition so consumers see progress in order.
		if emit != nil {
			if !emit(Event[S]{Type: EventUpdate, Node: current, Update: update}) {
				return ctx.Err()
			}
		}

		next, ok := g.edges[current][action]
		if !ok {
			next, ok = g.edges[current][ActionDefault]
		}
		if !ok {
			return fmt.Errorf("stage %q has no transition for action %q", current, action)
		}
		current = next
	}

	return nil
}
