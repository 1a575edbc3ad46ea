package readyup

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/readyup/internal/config"
	"github.com/loykin/readyup/internal/graph"
	"github.com/loykin/readyup/internal/history"
	"github.com/loykin/readyup/internal/metrics"
	"github.com/loykin/readyup/internal/orchestrator"
	"github.com/loykin/readyup/internal/report"
	iapi "github.com/loykin/readyup/internal/server"
	"github.com/loykin/readyup/internal/store"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Spec = graph.Spec

type ProbeConfig = graph.ProbeConfig

type CrashCheckConfig = graph.CrashCheckConfig

type LogTailConfig = graph.LogTailConfig

type State = report.State

type ServiceResult = report.ServiceResult

type RunReport = report.RunReport

type HistorySink = history.Sink

type RunStore = store.Store

// Graph validation errors, also used to derive CLI exit codes.
var (
	ErrCyclicDependency = graph.ErrCyclicDependency
	ErrInvalidSpec      = graph.ErrInvalidSpec
)

// Orchestrator is a thin facade over internal/orchestrator.Orchestrator.
// It provides a stable public API for embedding.
type Orchestrator struct{ inner orchestrator.Orchestrator }

func New() *Orchestrator { return &Orchestrator{} }

func (o *Orchestrator) SetLogger(l *slog.Logger) { o.inner.Logger = l }
func (o *Orchestrator) SetMaxConcurrency(n int) { o.inner.MaxConcurrency = n }
func (o *Orchestrator) OnTransition(fn func(name string, from, to State, res *ServiceResult)) {
	o.inner.OnTransition = fn
}

// Run brings every service in the graph to a terminal state and returns
// the report. Only a malformed graph returns an error.
func (o *Orchestrator) Run(ctx context.Context, specs []Spec) (*RunReport, error) {
	return o.inner.Run(ctx, specs)
}

// LoadConfig parses a TOML service-graph file.
func LoadConfig(path string) (*cfg.FileConfig, error) {
	return cfg.Load(path)
}

// NewHTTPServer starts the daemon API on addr using a fresh run registry.
func NewHTTPServer(addr, basePath string, logger *slog.Logger) (*http.Server, *iapi.Registry) {
	reg := iapi.NewRegistry(logger)
	return iapi.NewServer(addr, basePath, reg), reg
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the
// default registry. It blocks in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
