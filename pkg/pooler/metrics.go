package pooler

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PromMetrics exports the pooler's counters to Prometheus. The same
// numbers are available programmatically via MetricsSnapshot; this
// mirrors them onto a registry for scraping.
type PromMetrics struct {
	Enqueued    *prometheus.CounterVec
	Dequeued    prometheus.Counter
	TimedOut    prometheus.Counter
	Errors      prometheus.Counter
	QueueSize   prometheus.Gauge
	WaitSeconds prometheus.Histogram
}

// NewPromMetrics registers the pooler collectors on reg.
func NewPromMetrics(reg prometheus.Registerer) *PromMetrics {
	m := &PromMetrics{
		Enqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pooler_operations_enqueued_total",
			Help: "Operations accepted into the pooler queue",
		}, []string{"priority"}),
		Dequeued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pooler_operations_dequeued_total",
			Help: "Operations dispatched from the pooler queue",
		}),
		TimedOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pooler_operations_timed_out_total",
			Help: "Operations whose caller gave up waiting",
		}),
		Errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pooler_operation_errors_total",
			Help: "Operations that completed with an error",
		}),
		QueueSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pooler_queue_size",
			Help: "Operations currently waiting in the queue",
		}),
		WaitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pooler_wait_seconds",
			Help:    "Time operations spent queued before dispatch",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
	}
	reg.MustRegister(m.Enqueued, m.Dequeued, m.TimedOut, m.Errors, m.QueueSize, m.WaitSeconds)
	return m
}
