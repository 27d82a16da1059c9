// Package metrics provides Prometheus instrumentation for mediaflow components.
//
// Every component that moves bytes accepts an optional *Registry through its
// Config. A nil registry disables collection for that component; label values
// are taken from the component's Name.
//
// # Metric families
//
//   - mediaflow_buffer_*: producer/consumer buffers (bytes in and out, queued
//     requests, blocks, syncs)
//   - mediaflow_source_*: buffered source adapters (source reads, window
//     refills, seeks by result)
//   - mediaflow_bridge_streams_opened_total: bounded and live streams built by
//     source handles
//   - mediaflow_dispatcher_*: serial dispatchers (ops run, queue depth, panics)
//   - mediaflow_feed_*: live producers (bytes pumped, errors, scheduled syncs)
//
// # Quick Start
//
//	reg := metrics.NewRegistry(prometheus.NewRegistry())
//	buf, _ := pcbuf.NewWithConfig(pcbuf.Config{Name: "camera-1", Metrics: reg})
//
// Then expose metrics via HTTP:
//
//	http.Handle("/metrics", promhttp.Handler())
package metrics
