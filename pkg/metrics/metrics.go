// Package metrics counts what one audit run read and produced. The counters
// live on a private registry so a run can be exported as a node exporter
// textfile without touching the global default registry.
package metrics

import (
	"fmt"
	"time"

	"github.com/praetorian-inc/diskaudit/pkg/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "diskaudit"

type Metrics struct {
	registry *prometheus.Registry

	eventsRead      *prometheus.CounterVec
	readFailures    *prometheus.CounterVec
	diskChanges     *prometheus.CounterVec
	attachChanges   *prometheus.CounterVec
	inventoryRows   *prometheus.CounterVec
	subscriptions   prometheus.Gauge
	runDuration     prometheus.Gauge
	lastRunFinished prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		eventsRead: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "activity_log",
				Name:      "events_total",
				Help:      "Activity Log events read, by query kind",
			},
			[]string{"kind"},
		),
		readFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "activity_log",
				Name:      "read_failures_total",
				Help:      "Subscriptions whose Activity Log read failed, by query kind",
			},
			[]string{"kind"},
		),
		diskChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "report",
				Name:      "disk_changes_total",
				Help:      "Disk change rows, by change type and source",
			},
			[]string{"change_type", "source"},
		),
		attachChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "report",
				Name:      "attach_changes_total",
				Help:      "Attach and detach rows, by change type",
			},
			[]string{"change_type"},
		),
		inventoryRows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "inventory",
				Name:      "rows_total",
				Help:      "Rows returned by inventory queries, by query",
			},
			[]string{"query"},
		),
		subscriptions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscriptions",
			Help:      "Subscriptions audited in the run",
		}),
		runDuration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall clock duration of the run",
		}),
		lastRunFinished: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the run finished",
		}),
	}
}

// The recording methods accept a nil receiver so callers can run without
// metrics.

func (m *Metrics) EventsRead(kind string, n int) {
	if m == nil {
		return
	}
	m.eventsRead.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) ReadFailed(kind string) {
	if m == nil {
		return
	}
	m.readFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) DiskChange(changeType, source string) {
	if m == nil {
		return
	}
	m.diskChanges.WithLabelValues(changeType, source).Inc()
}

func (m *Metrics) AttachChange(changeType string) {
	if m == nil {
		return
	}
	m.attachChanges.WithLabelValues(changeType).Inc()
}

func (m *Metrics) InventoryRows(query string, n int) {
	if m == nil {
		return
	}
	m.inventoryRows.WithLabelValues(query).Add(float64(n))
}

func (m *Metrics) Subscriptions(n int) {
	if m == nil {
		return
	}
	m.subscriptions.Set(float64(n))
}

func (m *Metrics) RunFinished(started, finished time.Time) {
	if m == nil {
		return
	}
	m.runDuration.Set(finished.Sub(started).Seconds())
	m.lastRunFinished.Set(float64(finished.Unix()))
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes every metric in the text exposition format. The file is
// replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := utils.EnsureFileDirectory(path); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
