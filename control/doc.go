// Package control
// Author: momentics <momentics@gmail.com>
//
// Hot-reload configuration, datapath metrics, and debug introspection for
// the switch runtime. Stands in for the external text-config loader and
// logging transport named in the core spec as out-of-scope collaborators.
//
// Provides concurrent-safe state handling primitives including:
//   - Immutable snapshot config reads and atomic updates
//   - Runtime observers for hot-reload
//   - Metrics telemetry contracts, optionally exported to Prometheus
//   - State export, debug hooks, and probe registration
//
// This package is cross-platform and build-tag-partitioned as needed.
package control
