// Package metrics records ingestion runs for Prometheus. The collector is a
// batch job, so the registry is written to a node-exporter textfile at the
// end of a run rather than served.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"macrodb/internal/model"
)

type Metrics struct {
	registry *prometheus.Registry

	SourceFetches  *prometheus.CounterVec
	RowsUpserted   *prometheus.CounterVec
	FetchDuration  *prometheus.HistogramVec
	LastRunSeconds prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		SourceFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "macrodb_source_fetch_total",
				Help: "Source fetch attempts by outcome",
			},
			[]string{"source", "status"}, // status: OK|ERROR
		),

		RowsUpserted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "macrodb_rows_upserted_total",
				Help: "Rows written to the store per source",
			},
			[]string{"source"},
		),

		FetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "macrodb_source_fetch_duration_seconds",
				Help:    "Time spent fetching, parsing and storing one source",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"source"},
		),

		LastRunSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "macrodb_last_run_timestamp_seconds",
				Help: "Unix timestamp of the last completed ingestion run",
			},
		),
	}

	m.registry.MustRegister(m.SourceFetches, m.RowsUpserted, m.FetchDuration, m.LastRunSeconds)
	return m
}

// ObserveSource records one source attempt. A nil receiver is a no-op.
func (m *Metrics) ObserveSource(source string, status model.FetchStatus, rows int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.SourceFetches.WithLabelValues(source, string(status)).Inc()
	m.FetchDuration.WithLabelValues(source).Observe(elapsed.Seconds())
	if rows > 0 {
		m.RowsUpserted.WithLabelValues(source).Add(float64(rows))
	}
}

func (m *Metrics) MarkRun(at time.Time) {
	if m == nil {
		return
	}
	m.LastRunSeconds.Set(float64(at.Unix()))
}

// WriteTextfile atomically replaces path with the current registry contents.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
