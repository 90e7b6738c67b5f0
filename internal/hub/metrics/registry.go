package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"eventhub/internal/hub"
)

// Registry encapsulates all metrics and provides a clean interface
// for recording metrics without global state
type Registry struct {
	registry *prometheus.Registry

	// Trigger metrics
	batchTotal    *prometheus.CounterVec
	batchDuration *prometheus.HistogramVec
	batchSize     *prometheus.HistogramVec
	recordsTotal  *prometheus.CounterVec
	retriesTotal  *prometheus.CounterVec

	// Producer metrics
	produceTotal    *prometheus.CounterVec
	produceDuration *prometheus.HistogramVec

	// Controller/Database metrics
	databaseOperationTotal    *prometheus.CounterVec
	databaseOperationDuration *prometheus.HistogramVec
	leaseOperationTotal       *prometheus.CounterVec

	// System health metrics
	systemInfo *prometheus.GaugeVec
	startTime  prometheus.Gauge
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	registry := prometheus.NewRegistry()

	r := &Registry{
		registry: registry,

		batchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventhub_trigger_batch_total",
				Help: "Total number of batches handled by the trigger function",
			},
			[]string{"channel", "outcome"}, // outcome: ok, single, many
		),

		batchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eventhub_trigger_batch_duration_seconds",
				Help:    "Time spent handling a batch",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"channel"},
		),

		batchSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eventhub_trigger_batch_size",
				Help:    "Number of records in handled batches",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
			[]string{"channel"},
		),

		recordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventhub_trigger_records_total",
				Help: "Total number of records handled, by status",
			},
			[]string{"channel", "status"}, // status: success, error
		),

		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventhub_trigger_retries_total",
				Help: "Total number of batch redeliveries made by the trigger runtime",
			},
			[]string{"channel", "group"},
		),

		produceTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventhub_producer_events_total",
				Help: "Total number of events produced by the output function",
			},
			[]string{"channel", "status"}, // status: success, error
		),

		produceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eventhub_producer_duration_seconds",
				Help:    "Time spent producing an event",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"channel"},
		),

		databaseOperationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventhub_database_operation_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"}, // operation: get_offset, commit_offset, insert_message, etc.
		),

		databaseOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eventhub_database_operation_duration_seconds",
				Help:    "Time spent on database operations",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"operation"},
		),

		leaseOperationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventhub_lease_operation_total",
				Help: "Total number of lease operations",
			},
			[]string{"operation", "status"}, // operation: create, delete
		),

		systemInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "eventhub_system_info",
				Help: "System information (value is always 1, labels contain info)",
			},
			[]string{"version", "build_time"},
		),

		startTime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "eventhub_start_time_seconds",
				Help: "Unix timestamp when the application started",
			},
		),
	}

	// add default Go metrics (memory, GC, goroutines, etc.)
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	registry.MustRegister(
		r.batchTotal,
		r.batchDuration,
		r.batchSize,
		r.recordsTotal,
		r.retriesTotal,
		r.produceTotal,
		r.produceDuration,
		r.databaseOperationTotal,
		r.databaseOperationDuration,
		r.leaseOperationTotal,
		r.systemInfo,
		r.startTime,
	)

	r.startTime.SetToCurrentTime()

	return r
}

// Handler returns an HTTP handler for the Prometheus metrics endpoint
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		Registry:          r.registry,
	})
}

// Outcome names the batch outcome carried by err: ok, single or many.
func Outcome(err error) string {
	return hub.KindOf(err).String()
}

// RecordBatch records one handled batch and the per-record split.
func (r *Registry) RecordBatch(channel string, size int, duration time.Duration, err error) {
	failed := len(hub.Failures(err))
	if failed > size {
		failed = size
	}

	r.batchTotal.WithLabelValues(channel, Outcome(err)).Inc()
	r.batchDuration.WithLabelValues(channel).Observe(duration.Seconds())
	r.batchSize.WithLabelValues(channel).Observe(float64(size))
	if ok := size - failed; ok > 0 {
		r.recordsTotal.WithLabelValues(channel, "success").Add(float64(ok))
	}
	if failed > 0 {
		r.recordsTotal.WithLabelValues(channel, "error").Add(float64(failed))
	}
}

// RecordRetry records a batch being handed to the handler again.
func (r *Registry) RecordRetry(channel, group string) {
	r.retriesTotal.WithLabelValues(channel, group).Inc()
}

// RecordProduce records one output function invocation.
func (r *Registry) RecordProduce(channel string, duration time.Duration, err error) {
	r.produceTotal.WithLabelValues(channel, status(err)).Inc()
	r.produceDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordDatabaseOperation records a database operation
func (r *Registry) RecordDatabaseOperation(operation string, duration time.Duration, err error) {
	r.databaseOperationTotal.WithLabelValues(operation, status(err)).Inc()
	r.databaseOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordLeaseOperation records a lease operation
func (r *Registry) RecordLeaseOperation(operation string, err error) {
	r.leaseOperationTotal.WithLabelValues(operation, status(err)).Inc()
}

// SetSystemInfo sets system information metrics
func (r *Registry) SetSystemInfo(version, buildTime string) {
	r.systemInfo.WithLabelValues(version, buildTime).Set(1)
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
