// Package metrics provides Prometheus instrumentation for mediaflow components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all metric instances for mediaflow components.
type Registry struct {
	// Producer/consumer buffer metrics
	BufferBytesWritten   *prometheus.CounterVec
	BufferBytesRead      *prometheus.CounterVec
	BufferBytesDiscarded *prometheus.CounterVec
	BufferAvailable      *prometheus.GaugeVec
	BufferBlocks         *prometheus.GaugeVec
	BufferPending        *prometheus.GaugeVec
	BufferRequests       *prometheus.CounterVec
	BufferSyncs          *prometheus.CounterVec
	BufferWriteCloses    *prometheus.CounterVec

	// Buffered source adapter metrics
	SourceReads         *prometheus.CounterVec
	SourceBytesRead     *prometheus.CounterVec
	SourceWindowRefills *prometheus.CounterVec
	SourceSeeks         *prometheus.CounterVec
	SourceReadErrors    *prometheus.CounterVec

	// Source bridge metrics
	StreamsOpened *prometheus.CounterVec

	// Dispatcher metrics
	DispatcherOps        *prometheus.CounterVec
	DispatcherQueueDepth *prometheus.GaugeVec
	DispatcherPanics     *prometheus.CounterVec

	// Live feed metrics
	FeedBytes  *prometheus.CounterVec
	FeedErrors *prometheus.CounterVec
	FeedSyncs  *prometheus.CounterVec
}

// DefaultRegistry is the default metrics registry used by mediaflow components.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	return NewRegistryWithConfig(Config{Registry: reg})
}

// NewRegistryWithConfig creates a registry honoring the namespace and constant
// labels of config. A nil config.Registry means prometheus.DefaultRegisterer.
func NewRegistryWithConfig(config Config) *Registry {
	reg := config.Registry
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	ns := config.Namespace
	if ns == "" {
		ns = DefaultConfig().Namespace
	}
	factory := promauto.With(reg)

	counter := func(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.Labels,
		}, labels)
	}
	gauge := func(subsystem, name, help string, labels ...string) *prometheus.GaugeVec {
		return factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.Labels,
		}, labels)
	}

	return &Registry{
		BufferBytesWritten:   counter("buffer", "bytes_written_total", "Total bytes accepted by producer/consumer buffers", "buffer_name"),
		BufferBytesRead:      counter("buffer", "bytes_read_total", "Total bytes drained from producer/consumer buffers", "buffer_name"),
		BufferBytesDiscarded: counter("buffer", "bytes_discarded_total", "Bytes written after the read side was closed", "buffer_name"),
		BufferAvailable:      gauge("buffer", "available_bytes", "Unread bytes currently held", "buffer_name"),
		BufferBlocks:         gauge("buffer", "blocks", "Blocks currently in the block list", "buffer_name"),
		BufferPending:        gauge("buffer", "pending_requests", "Queued read requests waiting for data", "buffer_name"),
		BufferRequests:       counter("buffer", "requests_total", "Read requests by kind and outcome", "buffer_name", "kind", "outcome"),
		BufferSyncs:          counter("buffer", "syncs_total", "Sync calls", "buffer_name"),
		BufferWriteCloses:    counter("buffer", "write_closes_total", "CloseWrite calls that drained the request queue", "buffer_name"),

		SourceReads:         counter("source", "reads_total", "Calls to the wrapped source's Read", "source_name"),
		SourceBytesRead:     counter("source", "bytes_read_total", "Bytes returned by the wrapped source", "source_name"),
		SourceWindowRefills: counter("source", "window_refills_total", "Read-ahead window refills by cause", "source_name", "cause"),
		SourceSeeks:         counter("source", "seeks_total", "Seeks by result (window, refill, rejected)", "source_name", "result"),
		SourceReadErrors:    counter("source", "read_errors_total", "Errors returned by the wrapped source", "source_name"),

		StreamsOpened: counter("bridge", "streams_opened_total", "Streams built by source handles", "kind", "flavor"),

		DispatcherOps:        counter("dispatcher", "ops_total", "Continuations run by the dispatcher", "dispatcher_name"),
		DispatcherQueueDepth: gauge("dispatcher", "queue_depth", "Continuations waiting to run", "dispatcher_name"),
		DispatcherPanics:     counter("dispatcher", "panics_total", "Continuations that panicked", "dispatcher_name"),

		FeedBytes:  counter("feed", "bytes_total", "Bytes pumped into live buffers", "feed_name"),
		FeedErrors: counter("feed", "errors_total", "Producer errors that ended a feed", "feed_name"),
		FeedSyncs:  counter("feed", "syncs_total", "Scheduled syncs of live buffers", "feed_name"),
	}
}
