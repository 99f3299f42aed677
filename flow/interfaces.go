package flow

import "context"

// Update is a partial state change produced by a single stage run.
// The engine applies it to the shared state before evaluating the next
// transition, and streaming consumers receive it inside an Event.
type Update[S any] interface {
	// Apply merges this partial update into the workflow state
	Apply(s *S)
}

// Stage defines a single step in the workflow graph. Implementations read
// the current state and return a partial update plus the action that selects
// the outgoing edge. A stage must not retain the state pointer past Run.
type Stage[S any] interface {
	// Name returns the stage identifier used for edges and events
	Name() string

	// Run executes the stage logic against the current state
	Run(ctx context.Context, s *S) (Update[S], Action, error)
}
