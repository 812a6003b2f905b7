package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Buffer pool metrics
	BuffersReserved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "prof_agent_buffers_reserved_total",
		Help: "Total number of successful buffer reservations",
	})

	ReserveSaturated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "prof_agent_reserve_saturated_total",
		Help: "Total number of reservations that failed because every slot was busy",
	})

	BuffersCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "prof_agent_buffers_committed_total",
		Help: "Total number of buffers committed for flushing",
	})

	// Flush metrics
	FlushedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "prof_agent_flushed_bytes_total",
		Help: "Total number of bytes written to the sink",
	})

	PartialWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "prof_agent_partial_writes_total",
		Help: "Total number of sink writes that consumed only part of a buffer",
	})

	SinkWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "prof_agent_sink_write_errors_total",
		Help: "Total number of sink write errors (bytes stay buffered)",
	})

	FlushLockContended = promauto.NewCounter(prometheus.CounterOpts{
		Name: "prof_agent_flush_lock_contended_total",
		Help: "Total number of flush attempts abandoned because another goroutine held the write lock",
	})

	// Pool occupancy (updated from the agent's stats loop)
	SlotsReady = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "prof_agent_slots_ready",
		Help: "Number of slots currently waiting to be flushed",
	})

	SlotsFilling = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "prof_agent_slots_filling",
		Help: "Number of slots currently being filled by producers",
	})

	// Sampler metrics
	SamplesCaptured = promauto.NewCounter(prometheus.CounterOpts{
		Name: "prof_agent_samples_captured_total",
		Help: "Total number of samples captured",
	})

	SamplesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prof_agent_samples_dropped_total",
		Help: "Total number of samples dropped",
	}, []string{"reason"})

	SampleEncodeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "prof_agent_sample_encode_latency_seconds",
		Help:    "Sample capture and encode latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.000001, 4, 10), // 1us to ~260ms
	})

	// Sink circuit breaker state (0=closed, 1=open, 2=half-open)
	SinkBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "prof_agent_sink_breaker_state",
		Help: "Sink circuit breaker state (0=closed, 1=open, 2=half-open)",
	})

	SinkBreakerRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "prof_agent_sink_breaker_rejected_total",
		Help: "Total number of sink writes rejected by the open circuit breaker",
	})

	// Configuration refresh metrics
	ConfigRefreshErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prof_agent_config_refresh_errors_total",
		Help: "Total number of configuration refresh errors",
	}, []string{"config_type"})
)

// IncSampleDropped increments the dropped-sample counter for a reason.
func IncSampleDropped(reason string) {
	SamplesDropped.WithLabelValues(reason).Inc()
}
