package flow

// Action represents the outcome of a stage run that determines flow control
type Action string

// Common actions
const (
	ActionNext    Action = "next"
	ActionRetry   Action = "retry"
	ActionDefault Action = "default"
)

// End is the sentinel transition target that terminates a traversal.
const End = "end"

// EventType identifies the kind of event emitted during a streaming run
type EventType string

const (
	// EventUpdate is emitted once per completed stage and carries the
	// partial state update that stage produced.
	EventUpdate EventType = "update"
	// EventError is emitted once, as the final event, when a traversal
	// fails before reaching End.
	EventError EventType = "error"
)

// Event is a single progress notification from a streaming run
type Event[S any] struct {
	Type   EventType
	Node   string    // stage that produced the event
	Update Update[S] // partial state produced by the stage, nil for errors
	Err    error     // set only when Type is EventError
}
