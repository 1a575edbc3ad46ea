package detector

// Detector is a strategy that determines whether the unit backing a
// service is still running. The prober treats a not-alive answer during
// probing as a crash, which preempts timeout reporting within the same
// polling tick. Implementations must be safe for concurrent use.
type Detector interface {
	// Alive returns true if the unit is detected as running.
	Alive() (bool, error)
	// Describe returns a human-readable description of the detection method.
	Describe() string
}
