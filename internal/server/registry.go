package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loykin/readyup/internal/graph"
	"github.com/loykin/readyup/internal/orchestrator"
	"github.com/loykin/readyup/internal/report"
)

// ErrRunNotFound is returned when a run ID is unknown to the registry.
var ErrRunNotFound = errors.New("run not found")

// RunStatus is the lifecycle of a submitted run as seen over the API.
type RunStatus string

const (
	RunRunning  RunStatus = "running"
	RunFinished RunStatus = "finished"
	RunFailed   RunStatus = "failed" // graph rejected, nothing probed
)

// Run is one submitted orchestration tracked by the registry.
type Run struct {
	ID          string            `json:"id"`
	Status      RunStatus         `json:"status"`
	SubmittedAt time.Time         `json:"submitted_at"`
	Report      *report.RunReport `json:"report,omitempty"`
	Error       string            `json:"error,omitempty"`

	cancel context.CancelFunc
	done   chan struct{}
}

// Registry launches runs asynchronously and keeps their reports in
// memory for later retrieval. One registry per daemon process.
type Registry struct {
	Logger         *slog.Logger
	MaxConcurrency int
	OnFinished     func(*report.RunReport) // persistence hook, called off the API path

	mu   sync.Mutex
	runs map[string]*Run
	seq  atomic.Int64
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{Logger: logger, runs: make(map[string]*Run)}
}

// Submit validates nothing itself; the orchestrator rejects bad graphs
// and the run is recorded as failed. Returns the run ID immediately.
func (reg *Registry) Submit(specs []graph.Spec) string {
	id := fmt.Sprintf("run-%d-%d", time.Now().Unix(), reg.seq.Add(1))
	ctx, cancel := context.WithCancel(context.Background())
	run := &Run{
		ID:          id,
		Status:      RunRunning,
		SubmittedAt: time.Now(),
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	reg.mu.Lock()
	reg.runs[id] = run
	reg.mu.Unlock()

	go func() {
		defer close(run.done)
		o := &orchestrator.Orchestrator{Logger: reg.Logger, MaxConcurrency: reg.MaxConcurrency}
		rep, err := o.Run(ctx, specs)
		reg.mu.Lock()
		if err != nil {
			run.Status = RunFailed
			run.Error = err.Error()
		} else {
			run.Status = RunFinished
			run.Report = rep
		}
		reg.mu.Unlock()
		if err == nil && reg.OnFinished != nil {
			reg.OnFinished(rep)
		}
	}()
	return id
}

// Get returns a snapshot of one run.
func (reg *Registry) Get(id string) (*Run, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	run, ok := reg.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	cp := *run
	return &cp, nil
}

// List returns all runs, newest first.
func (reg *Registry) List() []*Run {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	out := make([]*Run, 0, len(reg.runs))
	for _, run := range reg.runs {
		cp := *run
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out
}

// Cancel aborts a running run. Cancelling a finished run is a no-op.
func (reg *Registry) Cancel(id string) error {
	reg.mu.Lock()
	run, ok := reg.runs[id]
	reg.mu.Unlock()
	if !ok {
		return ErrRunNotFound
	}
	run.cancel()
	return nil
}

// Wait blocks until the run reaches a terminal status or ctx expires.
func (reg *Registry) Wait(ctx context.Context, id string) (*Run, error) {
	reg.mu.Lock()
	run, ok := reg.runs[id]
	reg.mu.Unlock()
	if !ok {
		return nil, ErrRunNotFound
	}
	select {
	case <-run.done:
		return reg.Get(id)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
