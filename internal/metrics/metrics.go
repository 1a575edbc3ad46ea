package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	probes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "readyup",
			Subsystem: "service",
			Name:      "probes_total",
			Help:      "Number of readiness probe calls issued, by result.",
		}, []string{"service", "result"},
	)
	transportErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "readyup",
			Subsystem: "service",
			Name:      "probe_transport_errors_total",
			Help:      "Number of probe calls that failed to complete.",
		}, []string{"service"},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "readyup",
			Subsystem: "service",
			Name:      "state_transitions_total",
			Help:      "Number of readiness state transitions.",
		}, []string{"service", "from", "to"},
	)
	currentState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "readyup",
			Subsystem: "service",
			Name:      "current_state",
			Help:      "Current readiness state of services (1 = active state, 0 = inactive).",
		}, []string{"service", "state"},
	)
	timeToReady = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "readyup",
			Subsystem: "service",
			Name:      "time_to_ready_seconds",
			Help:      "Elapsed time from probing start to Ready.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 12),
		}, []string{"service"},
	)
	runDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "readyup",
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of orchestration runs.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		},
	)
	runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "readyup",
			Subsystem: "run",
			Name:      "runs_total",
			Help:      "Number of orchestration runs by aggregate outcome.",
		}, []string{"outcome"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{probes, transportErrors, stateTransitions, currentState, timeToReady, runDuration, runs}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler serving Prometheus metrics for the
// DefaultGatherer. The caller wires the route and server.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncProbe(service string, ready bool) {
	if regOK.Load() {
		result := "unready"
		if ready {
			result = "ready"
		}
		probes.WithLabelValues(service, result).Inc()
	}
}

func IncTransportError(service string) {
	if regOK.Load() {
		transportErrors.WithLabelValues(service).Inc()
	}
}

func RecordStateTransition(service, from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(service, from, to).Inc()
	}
}

func SetCurrentState(service, state string, active bool) {
	if regOK.Load() {
		var v float64
		if active {
			v = 1
		}
		currentState.WithLabelValues(service, state).Set(v)
	}
}

func ObserveTimeToReady(service string, seconds float64) {
	if regOK.Load() {
		timeToReady.WithLabelValues(service).Observe(seconds)
	}
}

func ObserveRunDuration(seconds float64) {
	if regOK.Load() {
		runDuration.Observe(seconds)
	}
}

func IncRun(outcome string) {
	if regOK.Load() {
		runs.WithLabelValues(outcome).Inc()
	}
}
