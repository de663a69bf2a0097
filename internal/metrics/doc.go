// Package metrics exposes Prometheus instrumentation for the Volume Sync
// Container.
package metrics
