package kafka

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics accounts the consumer's throughput in memory and mirrors it to a
// Prometheus registry for the ops endpoint. The in-memory counters are the
// source of truth for the /stats snapshot.
type Metrics struct {
	startTime time.Time
	processed atomic.Int64
	errors    atomic.Int64
	running   atomic.Bool

	processedTotal prometheus.Counter
	errorsTotal    prometheus.Counter
	processingTime prometheus.Histogram
	runningGauge   prometheus.Gauge
}

func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		startTime: time.Now(),
		processedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "event_processor_records_processed_total",
			Help: "Records fully dispatched (including records with handler failures).",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "event_processor_errors_total",
			Help: "Decode failures plus handler failures.",
		}),
		processingTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "event_processor_record_duration_seconds",
			Help:    "Per-record dispatch latency.",
			Buckets: prometheus.DefBuckets,
		}),
		runningGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "event_processor_running",
			Help: "1 while the consumption loop is active.",
		}),
	}
	reg.MustRegister(m.processedTotal, m.errorsTotal, m.processingTime, m.runningGauge)
	return m
}

func (m *Metrics) RecordProcessed(d time.Duration) {
	m.processed.Add(1)
	m.processedTotal.Inc()
	m.processingTime.Observe(d.Seconds())
}

func (m *Metrics) RecordError() {
	m.errors.Add(1)
	m.errorsTotal.Inc()
}

func (m *Metrics) SetRunning(running bool) {
	m.running.Store(running)
	if running {
		m.runningGauge.Set(1)
	} else {
		m.runningGauge.Set(0)
	}
}

// Snapshot is the consumer statistics document served by the ops endpoint.
type Snapshot struct {
	Running        bool    `json:"running"`
	TotalProcessed int64   `json:"total_processed"`
	TotalErrors    int64   `json:"total_errors"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
}

func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Running:        m.running.Load(),
		TotalProcessed: m.processed.Load(),
		TotalErrors:    m.errors.Load(),
		UptimeSeconds:  time.Since(m.startTime).Seconds(),
	}
}
