package logtail

import "context"

// DefaultLines is the tail length used when a config leaves it unset.
const DefaultLines = 20

// Tailer fetches the most recent log lines for a service. It is used
// only for diagnostics attached to non-ready terminal states and for
// periodic progress snapshots. Implementations must be safe for
// concurrent use.
type Tailer interface {
	Tail(ctx context.Context) ([]string, error)
	// Describe returns a human-readable description of the log source.
	Describe() string
}
