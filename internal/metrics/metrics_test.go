package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	var m dto.Metric
	if err := (<-ch).Write(&m); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if m.Counter != nil {
		return m.Counter.GetValue()
	}
	return m.Gauge.GetValue()
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	m.RecordLine()
	m.RecordParsed("TCP")
	m.RecordFiltered("gateway")
	m.RecordStored(3, time.Now())
	m.RecordGeoLookup("primary", "success")
	m.RecordNotification("event", nil)

	if m.Registry() != nil {
		t.Error("Nil metrics should have no registry")
	}
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Errorf("Nil metrics handler status = %d, want 404", rec.Code)
	}
}

func TestSessionsDoNotShareRegistries(t *testing.T) {
	a, b := New(), New()
	a.RecordLine()
	a.RecordLine()
	b.RecordLine()

	if got := counterValue(t, a.LinesTotal); got != 2 {
		t.Errorf("a lines = %v, want 2", got)
	}
	if got := counterValue(t, b.LinesTotal); got != 1 {
		t.Errorf("b lines = %v, want 1", got)
	}
}

func TestRecordStoredSetsGauges(t *testing.T) {
	m := New()
	ts := time.Unix(1700000000, 0)
	m.RecordStored(7, ts)

	if got := counterValue(t, m.StoreSize); got != 7 {
		t.Errorf("store size = %v, want 7", got)
	}
	if got := counterValue(t, m.LastEventTimestamp); got != 1700000000 {
		t.Errorf("last event = %v", got)
	}
	m.SetStoreSize(0)
	if got := counterValue(t, m.StoreSize); got != 0 {
		t.Errorf("store size after clear = %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.RecordFiltered("llmnr")
	m.RecordGeoLookup("fallback", "failure")
	m.RecordNotification("warning", errors.New("no bus"))

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	out := string(body)

	for _, want := range []string{
		`fwmon_events_filtered_total{reason="llmnr"} 1`,
		`fwmon_geo_lookups_total{endpoint="fallback",outcome="failure"} 1`,
		`fwmon_notifications_total{kind="warning",result="failed"} 1`,
		"fwmon_uptime_seconds",
		"go_goroutines",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in metrics output", want)
		}
	}
}
