package report

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// State is a service's position in the readiness lifecycle.
// Pending -> Probing -> {Ready | Crashed | TimedOut}; Skipped and
// Cancelled are terminal states reached without (further) probing.
type State string

const (
	StatePending   State = "pending"
	StateProbing   State = "probing"
	StateReady     State = "ready"
	StateCrashed   State = "crashed"
	StateTimedOut  State = "timed_out"
	StateSkipped   State = "skipped"
	StateCancelled State = "cancelled"
)

// Terminal reports whether no further transition can occur.
func (s State) Terminal() bool {
	switch s {
	case StateReady, StateCrashed, StateTimedOut, StateSkipped, StateCancelled:
		return true
	}
	return false
}

// Ready reports the one successful terminal state.
func (s State) Ready() bool { return s == StateReady }

// ServiceResult is the final outcome for one service in a run.
type ServiceResult struct {
	Name     string         `json:"name"`
	State    State          `json:"state"`
	Polls    int            `json:"polls"`
	Elapsed  time.Duration  `json:"elapsed"`
	Detail   string         `json:"detail,omitempty"`  // terminal reason, e.g. "crash check reported exit"
	Payload  map[string]any `json:"payload,omitempty"` // last health payload
	LogLines []string       `json:"log_lines,omitempty"`
}

// RunReport maps each service to its final outcome. It is owned by the
// run that produced it and is read-only once returned to the caller.
type RunReport struct {
	StartedAt  time.Time                 `json:"started_at"`
	FinishedAt time.Time                 `json:"finished_at"`
	Services   map[string]*ServiceResult `json:"services"`
}

// New returns an empty report stamped with the start time.
func New(start time.Time) *RunReport {
	return &RunReport{
		StartedAt: start,
		Services:  make(map[string]*ServiceResult),
	}
}

// AllReady reports whether every service reached Ready.
func (r *RunReport) AllReady() bool {
	for _, s := range r.Services {
		if !s.State.Ready() {
			return false
		}
	}
	return true
}

// Names returns service names sorted for stable output.
func (r *RunReport) Names() []string {
	names := make([]string, 0, len(r.Services))
	for n := range r.Services {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Duration is the wall-clock span of the run.
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// JSON renders the report as indented JSON.
func (r *RunReport) JSON() (string, error) {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Table renders the report as an aligned text table, one service per
// line, followed by captured diagnostics for non-ready outcomes.
func (r *RunReport) Table() string {
	var b strings.Builder
	nameW := len("SERVICE")
	for _, n := range r.Names() {
		if len(n) > nameW {
			nameW = len(n)
		}
	}
	fmt.Fprintf(&b, "%-*s  %-10s  %6s  %10s  %s\n", nameW, "SERVICE", "STATE", "POLLS", "ELAPSED", "DETAIL")
	for _, n := range r.Names() {
		s := r.Services[n]
		fmt.Fprintf(&b, "%-*s  %-10s  %6d  %10s  %s\n",
			nameW, s.Name, s.State, s.Polls, s.Elapsed.Round(time.Millisecond), s.Detail)
	}
	for _, n := range r.Names() {
		s := r.Services[n]
		if s.State.Ready() || len(s.LogLines) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n--- %s: last %d log lines ---\n", s.Name, len(s.LogLines))
		for _, l := range s.LogLines {
			b.WriteString(l)
			b.WriteByte('\n')
		}
	}
	return b.String()
}
