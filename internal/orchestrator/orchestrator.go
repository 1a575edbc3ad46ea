package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/readyup/internal/graph"
	"github.com/loykin/readyup/internal/metrics"
	"github.com/loykin/readyup/internal/prober"
	"github.com/loykin/readyup/internal/report"
)

// Orchestrator runs the scheduler and probers across a service graph to
// produce a RunReport. Construct once, Run per orchestration; all
// per-run state lives inside Run.
type Orchestrator struct {
	Logger *slog.Logger
	// MaxConcurrency bounds how many services probe at once.
	// Zero or negative means unbounded.
	MaxConcurrency int
	// OnTransition, when set, is invoked for every state change
	// (progress lines, event sinks). Called sequentially.
	OnTransition func(name string, from, to report.State, res *report.ServiceResult)
}

// Run validates the graph and brings every service to a terminal state.
// Individual service failures are captured in the report, never
// returned as errors; only a malformed graph (ErrCyclicDependency,
// ErrInvalidSpec) fails the call. Cancelling ctx marks all non-terminal
// services Cancelled.
func (o *Orchestrator) Run(ctx context.Context, specs []graph.Spec) (*report.RunReport, error) {
	g, err := graph.New(specs)
	if err != nil {
		return nil, err
	}
	for _, name := range g.Order {
		if err := g.Specs[name].Build(); err != nil {
			return nil, err
		}
	}

	log := o.Logger
	if log == nil {
		log = slog.Default()
	}

	r := newRun(g, log, o.OnTransition, o.MaxConcurrency)
	rep := r.execute(ctx)
	metrics.ObserveRunDuration(rep.Duration().Seconds())
	if rep.AllReady() {
		metrics.IncRun("ready")
	} else {
		metrics.IncRun("failed")
	}
	return rep, nil
}

// run holds the mutable state of one orchestration. States are owned
// exclusively by this run and exposed read-only via the final report.
type run struct {
	g            *graph.Graph
	log          *slog.Logger
	onTransition func(name string, from, to report.State, res *report.ServiceResult)

	mu     sync.Mutex
	states map[string]report.State
	rep    *report.RunReport
	wg     sync.WaitGroup
	sem    chan struct{} // nil when unbounded
}

func newRun(g *graph.Graph, log *slog.Logger, onTransition func(string, report.State, report.State, *report.ServiceResult), maxConc int) *run {
	r := &run{
		g:            g,
		log:          log,
		onTransition: onTransition,
		states:       make(map[string]report.State, len(g.Specs)),
		rep:          report.New(time.Now()),
	}
	if maxConc > 0 {
		r.sem = make(chan struct{}, maxConc)
	}
	for name := range g.Specs {
		r.states[name] = report.StatePending
		r.rep.Services[name] = &report.ServiceResult{Name: name, State: report.StatePending}
	}
	return r
}

func (r *run) execute(ctx context.Context) *report.RunReport {
	r.mu.Lock()
	for _, name := range r.g.Roots() {
		r.releaseLocked(ctx, name)
	}
	r.mu.Unlock()

	r.wg.Wait()

	r.mu.Lock()
	// Cancellation can leave services Pending; they are terminal too.
	for name, st := range r.states {
		if !st.Terminal() {
			r.transitionLocked(name, report.StateCancelled, &report.ServiceResult{
				Name:   name,
				State:  report.StateCancelled,
				Detail: "cancelled before probing",
			})
		}
	}
	r.rep.FinishedAt = time.Now()
	rep := r.rep
	r.mu.Unlock()
	return rep
}

// releaseLocked moves a Pending service into Probing and starts its
// poller. Callers hold r.mu.
func (r *run) releaseLocked(ctx context.Context, name string) {
	if r.states[name] != report.StatePending {
		return
	}
	r.transitionLocked(name, report.StateProbing, nil)
	spec := r.g.Specs[name]
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if r.sem != nil {
			select {
			case r.sem <- struct{}{}:
				defer func() { <-r.sem }()
			case <-ctx.Done():
				r.complete(ctx, name, &report.ServiceResult{
					Name:   name,
					State:  report.StateCancelled,
					Detail: "cancelled by caller",
				})
				return
			}
		}
		p := &prober.Poller{Spec: spec, Logger: r.log}
		r.complete(ctx, name, p.Poll(ctx))
	}()
}

// complete records a terminal result and either releases dependents
// whose dependencies are now all Ready, or cascades Skipped through the
// transitive dependents of a failed service.
func (r *run) complete(ctx context.Context, name string, res *report.ServiceResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitionLocked(name, res.State, res)

	if res.State.Ready() {
		for _, dep := range r.g.Dependents(name) {
			if r.states[dep] == report.StatePending && r.depsReadyLocked(dep) {
				r.releaseLocked(ctx, dep)
			}
		}
		return
	}
	if res.State == report.StateCancelled {
		// The final sweep in execute marks remaining services.
		return
	}
	// A failed dependency means dependents are never probed: mark the
	// whole transitive closure Skipped instead of leaving it Pending.
	for _, dep := range r.g.TransitiveDependents(name) {
		if r.states[dep] == report.StatePending {
			r.transitionLocked(dep, report.StateSkipped, &report.ServiceResult{
				Name:   dep,
				State:  report.StateSkipped,
				Detail: fmt.Sprintf("dependency %s %s", name, res.State),
			})
		}
	}
}

func (r *run) depsReadyLocked(name string) bool {
	for _, d := range r.g.Specs[name].DependsOn {
		if !r.states[d].Ready() {
			return false
		}
	}
	return true
}

// transitionLocked applies a state change, updates the report, and
// emits metrics and the transition callback. Callers hold r.mu.
func (r *run) transitionLocked(name string, to report.State, res *report.ServiceResult) {
	from := r.states[name]
	if from == to {
		return
	}
	r.states[name] = to
	if res != nil {
		r.rep.Services[name] = res
	} else {
		r.rep.Services[name].State = to
	}
	metrics.RecordStateTransition(name, string(from), string(to))
	metrics.SetCurrentState(name, string(from), false)
	metrics.SetCurrentState(name, string(to), true)
	r.log.Info("state change", "service", name, "from", from, "to", to)
	if r.onTransition != nil {
		r.onTransition(name, from, to, r.rep.Services[name])
	}
}
