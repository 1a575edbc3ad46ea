package store

import (
	"context"
	"time"

	"github.com/loykin/readyup/internal/report"
)

// RunRecord is the persisted summary of one orchestration run.
type RunRecord struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Outcome    string // "ready", "failed", "cancelled"
	Services   int
	ReadyCount int
}

// ServiceRecord is one service's terminal outcome within a run.
type ServiceRecord struct {
	RunID   string
	Name    string
	State   string
	Polls   int
	Elapsed time.Duration
	Detail  string
}

// Store persists completed run reports for later inspection.
type Store interface {
	EnsureSchema(ctx context.Context) error
	SaveRun(ctx context.Context, run RunRecord, services []ServiceRecord) error
	GetRun(ctx context.Context, id string) (RunRecord, []ServiceRecord, error)
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
	Close() error
}

// FromReport flattens a RunReport into store records.
func FromReport(id string, rep *report.RunReport) (RunRecord, []ServiceRecord) {
	run := RunRecord{
		ID:         id,
		StartedAt:  rep.StartedAt.UTC(),
		FinishedAt: rep.FinishedAt.UTC(),
		Services:   len(rep.Services),
	}
	svcs := make([]ServiceRecord, 0, len(rep.Services))
	cancelled := false
	for _, name := range rep.Names() {
		s := rep.Services[name]
		if s.State.Ready() {
			run.ReadyCount++
		}
		if s.State == report.StateCancelled {
			cancelled = true
		}
		svcs = append(svcs, ServiceRecord{
			RunID:   id,
			Name:    s.Name,
			State:   string(s.State),
			Polls:   s.Polls,
			Elapsed: s.Elapsed,
			Detail:  s.Detail,
		})
	}
	switch {
	case run.ReadyCount == run.Services:
		run.Outcome = "ready"
	case cancelled:
		run.Outcome = "cancelled"
	default:
		run.Outcome = "failed"
	}
	return run, svcs
}
