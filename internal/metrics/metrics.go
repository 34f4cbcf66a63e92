// Package metrics records run statistics as Prometheus metrics. A run is a batch
// job, so the registry is written to a node-exporter textfile rather than served.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jonathan/gdelt-extract/internal/events"
	"github.com/jonathan/gdelt-extract/internal/fetch"
)

const namespace = "gdelt_extract"

// Skip reasons.
const (
	ReasonTransfer       = "transfer"
	ReasonCorruptArchive = "corrupt_archive"
	ReasonMalformedTable = "malformed_table"
	ReasonOther          = "other"
)

// Metrics holds all Prometheus metrics for one run.
type Metrics struct {
	registry *prometheus.Registry

	EntriesSelected  prometheus.Gauge
	EntriesProcessed prometheus.Counter
	EntriesSkipped   *prometheus.CounterVec
	RowsScanned      prometheus.Counter
	RowsRetained     prometheus.Counter
	RunDuration      prometheus.Gauge
	LastSuccess      prometheus.Gauge
}

// New creates the run metrics on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		EntriesSelected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "entries_selected",
			Help:      "Number of export archives inside the requested window.",
		}),
		EntriesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "processed_total",
			Help:      "Total number of archives downloaded, decoded and filtered.",
		}),
		EntriesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "skipped_total",
			Help:      "Total number of archives skipped, by reason.",
		}, []string{"reason"}),
		RowsScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "records",
			Name:      "scanned_total",
			Help:      "Total number of event records inspected by the filter.",
		}),
		RowsRetained: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "records",
			Name:      "retained_total",
			Help:      "Total number of event records matching the country code.",
		}),
		RunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of the last run.",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that wrote an output file.",
		}),
	}

	m.registry.MustRegister(
		m.EntriesSelected,
		m.EntriesProcessed,
		m.EntriesSkipped,
		m.RowsScanned,
		m.RowsRetained,
		m.RunDuration,
		m.LastSuccess,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveSkip counts a skipped archive under the reason derived from err.
func (m *Metrics) ObserveSkip(err error) {
	m.EntriesSkipped.WithLabelValues(Reason(err)).Inc()
}

// ObserveRun records the run duration, and the completion time when the run
// produced output.
func (m *Metrics) ObserveRun(started, finished time.Time, succeeded bool) {
	m.RunDuration.Set(finished.Sub(started).Seconds())
	if succeeded {
		m.LastSuccess.Set(float64(finished.Unix()))
	}
}

// WriteTextfile writes the registry in the Prometheus text format to path.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

// Reason maps a per-archive error to its skip label.
func Reason(err error) string {
	var (
		fetchErr   *fetch.Error
		corruptErr *events.CorruptArchiveError
		tableErr   *events.MalformedTableError
	)
	switch {
	case errors.As(err, &fetchErr):
		return ReasonTransfer
	case errors.As(err, &corruptErr):
		return ReasonCorruptArchive
	case errors.As(err, &tableErr):
		return ReasonMalformedTable
	default:
		return ReasonOther
	}
}
