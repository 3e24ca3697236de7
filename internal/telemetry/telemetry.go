// Package telemetry holds the Prometheus collectors of the service.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "coursepulse"

type Metrics struct {
	registry *prometheus.Registry

	Reconstructions prometheus.Counter
	TimelineLength  prometheus.Histogram
	Scores          *prometheus.CounterVec
	FetchDuration   *prometheus.HistogramVec
	HTTPRequests    *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Reconstructions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "journey_reconstructions_total",
			Help:      "Journeys rebuilt from raw events.",
		}),
		TimelineLength: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "journey_timeline_entries",
			Help:      "Entries per reconstructed journey.",
			Buckets:   prometheus.LinearBuckets(0, 1, 9),
		}),
		Scores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intent_scores_total",
			Help:      "Intent scores computed, by level.",
		}, []string{"level"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_fetch_seconds",
			Help:      "Latency of reads against the data store.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"table", "outcome"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served.",
		}, []string{"method", "route", "status"}),
	}
	m.registry.MustRegister(
		m.Reconstructions,
		m.TimelineLength,
		m.Scores,
		m.FetchDuration,
		m.HTTPRequests,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format. A nil
// receiver serves 404.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveJourney records one reconstruction and, when level is not empty,
// the score level it produced. Safe on a nil receiver.
func (m *Metrics) ObserveJourney(entries int, level string) {
	if m == nil {
		return
	}
	m.Reconstructions.Inc()
	m.TimelineLength.Observe(float64(entries))
	if level != "" {
		m.Scores.WithLabelValues(level).Inc()
	}
}

// ObserveFetch records the latency of one store read. Safe on a nil receiver.
func (m *Metrics) ObserveFetch(table string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.FetchDuration.WithLabelValues(table, outcome).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveRequest(method, route string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
