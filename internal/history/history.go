package history

import (
	"context"
	"time"
)

// EventType defines the kind of orchestration event.
type EventType string

const (
	// EventTransition is emitted for every service state change.
	EventTransition EventType = "transition"
	// EventRunFinished is emitted once per run with the aggregate outcome.
	EventRunFinished EventType = "run_finished"
)

// Event is an orchestration lifecycle event exported to external
// analytics systems.
type Event struct {
	Type       EventType     `json:"type"`
	OccurredAt time.Time     `json:"occurred_at"`
	RunID      string        `json:"run_id"`
	Service    string        `json:"service,omitempty"`
	From       string        `json:"from,omitempty"`
	To         string        `json:"to,omitempty"`
	Detail     string        `json:"detail,omitempty"`
	Polls      int           `json:"polls,omitempty"`
	Elapsed    time.Duration `json:"elapsed,omitempty"`
	Outcome    string        `json:"outcome,omitempty"` // run_finished only
}

// Sink is a destination for orchestration events (analytics/statistics
// systems). Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
