package probe

import "context"

// Result is the outcome of one readiness probe call.
// Payload carries optional structured data returned by the target
// (e.g. a parsed /health JSON body) and is recorded on success.
type Result struct {
	Ready   bool           `json:"ready"`
	Payload map[string]any `json:"payload,omitempty"`
	Detail  string         `json:"detail,omitempty"` // short human-readable note, e.g. "HTTP 503"
}

// Probe is a strategy that checks whether a service is ready to serve.
// Check returns a non-nil error only for transport-level failures that
// suggest a broken probe path (DNS resolution, process spawn failure).
// A call that reached the target and found it unready, or could not
// connect because nothing listens yet, returns Ready=false and a nil
// error. Implementations must be safe for concurrent use and must
// honor ctx.
type Probe interface {
	Check(ctx context.Context) (Result, error)
	// Describe returns a human-readable description of the probe target.
	Describe() string
}
