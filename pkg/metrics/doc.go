// Package metrics exposes Prometheus gauges, counters, and histograms for
// the write path, claim/scheduler path, quota refusals, storage pool
// health, and the reconciler/recovery background loops. Handler() serves
// them for a reference host to mount; nothing in this package opens a
// listener itself.
package metrics
