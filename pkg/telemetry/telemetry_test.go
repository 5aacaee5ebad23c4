package telemetry

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/odrift/odrift/pkg/rpc"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestConfigRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tracing.Enabled = true
	cfg.Tracing.SampleRate = 2.0
	if err := cfg.Validate(); err == nil {
		t.Error("sample rate above 1 accepted")
	}

	cfg = DefaultConfig()
	cfg.Logging.Level = "shouting"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown log level accepted")
	}
}

func TestMetricsRecordRPCCall(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, Namespace: "odrift"})

	m.RecordRPCCall("res.partner", "read", 10*time.Millisecond, nil)
	m.RecordRPCCall("res.partner", "read", 10*time.Millisecond, rpc.NewNetworkError("timeout", nil))

	if got := testutil.ToFloat64(m.rpcCalls.WithLabelValues("res.partner", "read")); got != 2 {
		t.Errorf("rpc_calls_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.rpcErrors.WithLabelValues("network")); got != 1 {
		t.Errorf("rpc_errors_total{kind=network} = %v, want 1", got)
	}
}

func TestMetricsRecordOperationAndRun(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, Namespace: "odrift"})

	m.RecordOperation("create", "res.partner", true, time.Millisecond)
	m.RecordOperation("create", "res.partner", false, time.Millisecond)
	m.RecordApplyRun(true)
	m.SetDriftCount("res.partner", 3)
	m.RecordDriftCheck(false)

	if got := testutil.ToFloat64(m.operationsApplied.WithLabelValues("create", "success")); got != 1 {
		t.Errorf("operations success = %v", got)
	}
	if got := testutil.ToFloat64(m.operationsApplied.WithLabelValues("create", "failure")); got != 1 {
		t.Errorf("operations failure = %v", got)
	}
	if got := testutil.ToFloat64(m.driftResources.WithLabelValues("res.partner")); got != 3 {
		t.Errorf("drift_resources = %v", got)
	}
	if got := testutil.ToFloat64(m.driftChecks.WithLabelValues("drifted")); got != 1 {
		t.Errorf("drift_checks = %v", got)
	}
}

func TestMetricsDisabledIsNoOp(t *testing.T) {
	m := NewMetrics(MetricsConfig{})

	// Record methods must be safe on the no-op instance.
	m.RecordRPCCall("res.partner", "read", time.Millisecond, nil)
	m.RecordOperation("create", "res.partner", true, time.Millisecond)
	m.RecordApplyRun(false)
	m.SetDriftCount("res.partner", 1)
	m.RecordDriftCheck(true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code == 200 {
		t.Error("disabled metrics served a scrape")
	}
}

func TestMetricsHandlerServesScrape(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, Namespace: "odrift"})
	m.RecordApplyRun(true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("scrape status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "odrift_apply_runs_total") {
		t.Error("scrape body missing the namespaced metric")
	}
}

func TestEventBusPublish(t *testing.T) {
	bus := NewEventBus()

	var received []Event
	bus.Subscribe(func(e Event) { received = append(received, e) })
	bus.Subscribe(func(e Event) { received = append(received, e) })

	bus.Publish(Event{Type: EventTypeApplyStarted, Message: "starting"})

	if len(received) != 2 {
		t.Fatalf("deliveries = %d, want one per subscriber", len(received))
	}
	e := received[0]
	if e.ID == "" {
		t.Error("event id not filled in")
	}
	if e.Timestamp.IsZero() {
		t.Error("event timestamp not filled in")
	}
	if e.Level != EventLevelInfo {
		t.Errorf("default level = %q", e.Level)
	}
}

func TestEventBusPreservesExplicitFields(t *testing.T) {
	bus := NewEventBus()

	var got Event
	bus.Subscribe(func(e Event) { got = e })

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	bus.Publish(Event{
		ID:        "evt-1",
		Timestamp: ts,
		Type:      EventTypeOperationFailed,
		Level:     EventLevelError,
		Message:   "boom",
	})

	if got.ID != "evt-1" || !got.Timestamp.Equal(ts) || got.Level != EventLevelError {
		t.Errorf("event = %+v", got)
	}
}

func TestEventBusNoSubscribers(t *testing.T) {
	// Publishing with no subscribers must not panic.
	NewEventBus().Publish(Event{Type: EventTypeDriftDetected, Message: "x"})
}
