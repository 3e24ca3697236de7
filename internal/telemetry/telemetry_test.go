package telemetry

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveJourney(t *testing.T) {
	m := New()
	m.ObserveJourney(3, "Hot")
	m.ObserveJourney(0, "")

	if got := testutil.ToFloat64(m.Reconstructions); got != 2 {
		t.Fatalf("reconstructions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Scores.WithLabelValues("Hot")); got != 1 {
		t.Fatalf("hot scores = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveJourney(1, "Cold")
	m.ObserveFetch("analytics_events", time.Now(), nil)
	m.ObserveRequest("GET", "/", 200)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Fatalf("nil metrics handler = %d, want 404", rec.Code)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.ObserveFetch("analytics_events", time.Now(), errors.New("boom"))
	m.ObserveRequest("GET", "/bookings", 200)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{
		`coursepulse_source_fetch_seconds_count{outcome="error",table="analytics_events"} 1`,
		`coursepulse_http_requests_total{method="GET",route="/bookings",status="200"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
