package prober

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/loykin/readyup/internal/graph"
	"github.com/loykin/readyup/internal/metrics"
	"github.com/loykin/readyup/internal/probe"
	"github.com/loykin/readyup/internal/report"
)

// Poller drives one service from Probing to a terminal state.
type Poller struct {
	Spec   *graph.Spec
	Logger *slog.Logger
}

// Poll waits PollInterval, then runs one tick: crash check first (it
// preempts timeout within the same tick), then the readiness probe,
// then the timeout budget. It repeats until a terminal state is
// reached. The returned result carries poll count, elapsed time and
// captured diagnostics for non-ready outcomes.
func (p *Poller) Poll(ctx context.Context) *report.ServiceResult {
	spec := p.Spec
	log := p.Logger
	if log == nil {
		log = slog.Default()
	}
	start := time.Now()
	deadline := start.Add(spec.MaxWait)
	wait := spec.PollInterval
	transportFails := 0

	res := &report.ServiceResult{Name: spec.Name}
	finish := func(state report.State, detail string) *report.ServiceResult {
		res.State = state
		res.Elapsed = time.Since(start)
		res.Detail = detail
		if state != report.StateReady {
			res.LogLines = p.tailLogs(ctx)
		}
		return res
	}

	for {
		if !sleepCtx(ctx, boundedWait(wait, deadline)) {
			return finish(report.StateCancelled, "cancelled by caller")
		}

		// Crash check runs first each tick so a dead unit never waits
		// out its full budget. Checks are suppressed during the grace
		// window to let slow starters (re)establish themselves.
		if spec.CrashCheck != nil && time.Since(start) >= spec.CrashGrace {
			alive, err := spec.CrashCheck.Alive()
			if err != nil {
				log.Warn("crash check failed", "service", spec.Name, "check", spec.CrashCheck.Describe(), "error", err)
			} else if !alive {
				return finish(report.StateCrashed,
					fmt.Sprintf("crash check %s reported unit not running", spec.CrashCheck.Describe()))
			}
		}

		if time.Now().After(deadline) || time.Now().Equal(deadline) {
			return finish(report.StateTimedOut,
				fmt.Sprintf("not ready within %s after %d polls", spec.MaxWait, res.Polls))
		}

		res.Polls++
		out, err := spec.Probe.Check(ctx)
		if ctx.Err() != nil {
			// In-flight probe finished but the run was cancelled; the
			// result is discarded.
			return finish(report.StateCancelled, "cancelled by caller")
		}
		switch {
		case err != nil:
			metrics.IncTransportError(spec.Name)
			transportFails++
			log.Debug("probe transport error", "service", spec.Name, "poll", res.Polls, "error", err)
			if transportFails >= spec.MaxTransport {
				return finish(report.StateTimedOut,
					fmt.Sprintf("probe %s failed %d consecutive times: %v", spec.Probe.Describe(), transportFails, err))
			}
		case out.Ready:
			metrics.IncProbe(spec.Name, true)
			res.Payload = out.Payload
			elapsed := time.Since(start)
			metrics.ObserveTimeToReady(spec.Name, elapsed.Seconds())
			return finish(report.StateReady, out.Detail)
		default:
			metrics.IncProbe(spec.Name, false)
			transportFails = 0
			res.Detail = out.Detail
			res.Payload = out.Payload
		}

		if res.Polls%spec.DiagEvery == 0 {
			p.snapshot(ctx, log, res.Polls, out)
		}

		if spec.Backoff == graph.BackoffExponential {
			wait = nextBackoff(wait, spec.MaxInterval)
		}
	}
}

// snapshot surfaces progress diagnostics mid-wait so an operator does
// not have to wait for the final failure to see what is wrong.
func (p *Poller) snapshot(ctx context.Context, log *slog.Logger, polls int, last probe.Result) {
	attrs := []any{"service", p.Spec.Name, "polls", polls, "probe", p.Spec.Probe.Describe()}
	if last.Detail != "" {
		attrs = append(attrs, "last", last.Detail)
	}
	log.Info("still waiting", attrs...)
	for _, line := range p.tailLogs(ctx) {
		log.Info("log tail", "service", p.Spec.Name, "line", line)
	}
}

func (p *Poller) tailLogs(ctx context.Context) []string {
	if p.Spec.LogTail == nil {
		return nil
	}
	// Tail must work even when the run context is already cancelled,
	// since diagnostics are captured on the way out.
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	lines, err := p.Spec.LogTail.Tail(ctx)
	if err != nil {
		return []string{fmt.Sprintf("(log tail %s failed: %v)", p.Spec.LogTail.Describe(), err)}
	}
	return lines
}

// boundedWait never sleeps past the timeout deadline, so the terminal
// state is reported within one poll interval of the budget.
func boundedWait(wait time.Duration, deadline time.Time) time.Duration {
	if remain := time.Until(deadline); remain < wait {
		if remain < 0 {
			return 0
		}
		return remain
	}
	return wait
}

// nextBackoff doubles the wait with +-20% jitter, capped at maxInterval.
func nextBackoff(cur, maxInterval time.Duration) time.Duration {
	next := cur * 2
	if next > maxInterval {
		next = maxInterval
	}
	jitter := time.Duration(rand.Int64N(int64(next)/5+1)) - next/10
	next += jitter
	if next < time.Millisecond {
		next = time.Millisecond
	}
	return next
}

// sleepCtx waits for d or until ctx is done; it returns false when
// cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
