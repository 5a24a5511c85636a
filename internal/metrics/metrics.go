// Package metrics holds the Prometheus instrumentation for the board server and
// the batch client. All methods are safe on a nil receiver so callers can run
// without metrics.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "npubench"

// Session outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeRejected  = "rejected"
	OutcomeTransfer  = "transfer_error"
	OutcomeInvalid   = "invalid_bundle"
	OutcomeError     = "error"
	calibrationOK    = "ok"
	calibrationSoft  = "soft_fail"
	runnerSuccess    = "success"
	runnerFailure    = "failure"
	runnerLaunchFail = "launch_error"
	runnerTimeout    = "timeout"
)

// Server instruments sessions on the board.
type Server struct {
	sessions      *prometheus.CounterVec
	runs          *prometheus.CounterVec
	runDuration   prometheus.Histogram
	calibrations  *prometheus.CounterVec
	repeatCount   prometheus.Gauge
	bytesReceived prometheus.Counter
}

func NewServer(reg prometheus.Registerer) *Server {
	f := promauto.With(reg)
	return &Server{
		sessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Sessions handled, by outcome.",
		}, []string{"outcome"}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runner_invocations_total",
			Help:      "Benchmark runner invocations, by phase and result.",
		}, []string{"phase", "result"}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "runner_duration_seconds",
			Help:      "Wall time of benchmark runner invocations.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		calibrations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calibrations_total",
			Help:      "Repeat-count calibrations, by result.",
		}, []string{"result"}),
		repeatCount: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calibrated_repeat_count",
			Help:      "Repeat count chosen by the last successful calibration.",
		}),
		bytesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "received_bytes_total",
			Help:      "Bundle file bytes received.",
		}),
	}
}

func (m *Server) SessionDone(outcome string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(outcome).Inc()
}

// RunnerDone records one invocation. phase is "probe" or "run".
func (m *Server) RunnerDone(phase string, seconds float64, succeeded, timedOut, launched bool) {
	if m == nil {
		return
	}
	result := runnerFailure
	switch {
	case timedOut:
		result = runnerTimeout
	case !launched:
		result = runnerLaunchFail
	case succeeded:
		result = runnerSuccess
	}
	m.runs.WithLabelValues(phase, result).Inc()
	m.runDuration.Observe(seconds)
}

func (m *Server) Calibrated(ok bool, repeat int) {
	if m == nil {
		return
	}
	if !ok {
		m.calibrations.WithLabelValues(calibrationSoft).Inc()
		return
	}
	m.calibrations.WithLabelValues(calibrationOK).Inc()
	m.repeatCount.Set(float64(repeat))
}

func (m *Server) Received(n uint64) {
	if m == nil {
		return
	}
	m.bytesReceived.Add(float64(n))
}

// Handler serves the metrics in g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Batch instruments one client batch. The values are pushed once at the end.
type Batch struct {
	models  prometheus.Gauge
	passed  prometheus.Gauge
	failed  prometheus.Gauge
	lastRun prometheus.Gauge
}

func NewBatch(reg prometheus.Registerer) *Batch {
	f := promauto.With(reg)
	gauge := func(name, help string) prometheus.Gauge {
		return f.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Subsystem: "batch", Name: name, Help: help})
	}
	return &Batch{
		models:  gauge("models", "Models attempted in the last batch."),
		passed:  gauge("passed", "Models that passed in the last batch."),
		failed:  gauge("failed", "Models that failed in the last batch."),
		lastRun: gauge("last_completion_timestamp_seconds", "Completion time of the last batch."),
	}
}

func (b *Batch) Record(models, passed, failed int) {
	if b == nil {
		return
	}
	b.models.Set(float64(models))
	b.passed.Set(float64(passed))
	b.failed.Set(float64(failed))
	b.lastRun.SetToCurrentTime()
}

// Push sends everything in g to the pushgateway at url under job.
func Push(ctx context.Context, url, job string, g prometheus.Gatherer) error {
	if err := push.New(url, job).Gatherer(g).PushContext(ctx); err != nil {
		return fmt.Errorf("pushing metrics to %s: %w", url, err)
	}
	return nil
}
