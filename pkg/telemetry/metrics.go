package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odrift/odrift/pkg/rpc"
)

// Metrics provides Prometheus metrics for the engine. A disabled config
// yields a no-op instance whose record methods are safe to call.
type Metrics struct {
	config MetricsConfig

	// RPC metrics
	rpcCalls    *prometheus.CounterVec
	rpcErrors   *prometheus.CounterVec
	rpcDuration *prometheus.HistogramVec

	// Apply metrics
	operationsApplied *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	applyRuns         *prometheus.CounterVec

	// Drift metrics
	driftResources *prometheus.GaugeVec
	driftChecks    *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return &Metrics{config: cfg}
	}

	namespace := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		rpcCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rpc_calls_total",
				Help:      "Total number of JSON-RPC calls issued",
			},
			[]string{"model", "method"},
		),
		rpcErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rpc_errors_total",
				Help:      "Total number of failed JSON-RPC calls by error kind",
			},
			[]string{"kind"},
		),
		rpcDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rpc_duration_seconds",
				Help:      "Duration of JSON-RPC calls in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"model", "method"},
		),

		operationsApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_applied_total",
				Help:      "Total number of plan operations executed",
			},
			[]string{"type", "status"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of plan operation execution in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"type", "model"},
		),
		applyRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "apply_runs_total",
				Help:      "Total number of apply runs by final status",
			},
			[]string{"status"},
		),

		driftResources: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "drift_resources",
				Help:      "Number of records currently diverging from desired state",
			},
			[]string{"model"},
		),
		driftChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "drift_checks_total",
				Help:      "Total number of drift checks by outcome",
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(
		m.rpcCalls,
		m.rpcErrors,
		m.rpcDuration,
		m.operationsApplied,
		m.operationDuration,
		m.applyRuns,
		m.driftResources,
		m.driftChecks,
	)

	return m
}

// RecordRPCCall records one JSON-RPC call. Implements rpc.Recorder.
func (m *Metrics) RecordRPCCall(model, method string, duration time.Duration, err error) {
	if m.rpcCalls == nil {
		return
	}
	m.rpcCalls.WithLabelValues(model, method).Inc()
	m.rpcDuration.WithLabelValues(model, method).Observe(duration.Seconds())
	if err != nil {
		m.rpcErrors.WithLabelValues(errorKind(err)).Inc()
	}
}

// RecordOperation records the execution of a single plan operation.
func (m *Metrics) RecordOperation(opType, model string, success bool, duration time.Duration) {
	if m.operationsApplied == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	m.operationsApplied.WithLabelValues(opType, status).Inc()
	m.operationDuration.WithLabelValues(opType, model).Observe(duration.Seconds())
}

// RecordApplyRun records a completed apply run.
func (m *Metrics) RecordApplyRun(success bool) {
	if m.applyRuns == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	m.applyRuns.WithLabelValues(status).Inc()
}

// SetDriftCount sets the number of drifted records for a model.
func (m *Metrics) SetDriftCount(model string, count float64) {
	if m.driftResources == nil {
		return
	}
	m.driftResources.WithLabelValues(model).Set(count)
}

// RecordDriftCheck records the outcome of one drift check.
func (m *Metrics) RecordDriftCheck(inSync bool) {
	if m.driftChecks == nil {
		return
	}
	status := "drifted"
	if inSync {
		status = "in_sync"
	}
	m.driftChecks.WithLabelValues(status).Inc()
}

// Handler returns an HTTP handler serving the metrics registry.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartServer exposes /metrics on the configured listen address. The server
// runs until the process exits.
func (m *Metrics) StartServer() {
	if !m.config.Enabled || m.config.ListenAddress == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		_ = server.ListenAndServe()
	}()
}

// errorKind maps an error to its metric label.
func errorKind(err error) string {
	if kind := rpc.KindOf(err); kind != "" {
		return string(kind)
	}
	return "unknown"
}
