package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "stagesync"
	subsystem = "dispatcher"
)

// Metrics holds the dispatcher's collectors. Each instance registers on
// its own registry so tests and multiple dispatchers do not collide.
type Metrics struct {
	Registry *prometheus.Registry

	tasksTotal       *prometheus.CounterVec
	taskDuration     *prometheus.HistogramVec
	deliveriesTotal  *prometheus.CounterVec
	supersededTotal  *prometheus.CounterVec
	attachmentsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers the dispatcher collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		tasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "tasks_total",
				Help:      "Total number of processed tasks by type and status",
			},
			[]string{"task_type", "status"},
		),
		taskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "task_duration_seconds",
				Help:      "Time spent applying and delivering one task",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"task_type"},
		),
		deliveriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "deliveries_total",
				Help:      "Total number of connector deliveries by process type and outcome",
			},
			[]string{"connector", "process_type", "outcome"},
		),
		supersededTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "superseded_total",
				Help:      "Total number of queued deliveries replaced by a newer snapshot",
			},
			[]string{"connector"},
		),
		attachmentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "attachments_total",
				Help:      "Total number of attachment rows reconciled by action",
			},
			[]string{"action"},
		),
	}
}

// The record methods accept a nil receiver so that a dispatcher without
// metrics does not need guards at every call site.

func (m *Metrics) recordTask(taskType, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.tasksTotal.WithLabelValues(taskType, status).Inc()
	m.taskDuration.WithLabelValues(taskType).Observe(elapsed.Seconds())
}

func (m *Metrics) recordDelivery(connector, processType, outcome string) {
	if m == nil {
		return
	}
	m.deliveriesTotal.WithLabelValues(connector, processType, outcome).Inc()
}

func (m *Metrics) recordSuperseded(connector string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.supersededTotal.WithLabelValues(connector).Add(float64(n))
}

func (m *Metrics) recordAttachments(created, updated, deleted, skipped int) {
	if m == nil {
		return
	}
	m.attachmentsTotal.WithLabelValues("created").Add(float64(created))
	m.attachmentsTotal.WithLabelValues("updated").Add(float64(updated))
	m.attachmentsTotal.WithLabelValues("deleted").Add(float64(deleted))
	m.attachmentsTotal.WithLabelValues("skipped").Add(float64(skipped))
}

// WriteToTextfile writes the current metric values in the text exposition
// format, for node-exporter style collection after a batch run.
func (m *Metrics) WriteToTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
