// control/prometheus.go
// Author: momentics <momentics@gmail.com>
//
// Optional Prometheus export for MetricsRegistry. Additive to the
// in-process snapshot map -- nothing in the datapath depends on this file,
// so a build without a scrape target never pays for it beyond the
// registration cost below.

package control

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusExporter mirrors MetricsRegistry counters into a
// prometheus.Registry on demand. Datapath counters are int64/float64
// snapshots, not live instruments, so export re-reads the registry each
// time Collect is invoked rather than keeping its own counters in sync.
type PrometheusExporter struct {
	registry *MetricsRegistry
	desc     *prometheus.Desc
}

// NewPrometheusExporter wraps registry for use with a prometheus.Registerer.
func NewPrometheusExporter(registry *MetricsRegistry) *PrometheusExporter {
	return &PrometheusExporter{
		registry: registry,
		desc: prometheus.NewDesc(
			"xdpcore_datapath_metric",
			"Datapath counter exported from control.MetricsRegistry.",
			[]string{"name"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (e *PrometheusExporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.desc
}

// Collect implements prometheus.Collector, translating every numeric
// metric in the registry's snapshot into a gauge sample. Non-numeric
// values (e.g. strings from debug probes) are skipped.
func (e *PrometheusExporter) Collect(ch chan<- prometheus.Metric) {
	for name, v := range e.registry.GetSnapshot() {
		f, ok := asFloat64(v)
		if !ok {
			continue
		}
		ch <- prometheus.MustNewConstMetric(e.desc, prometheus.GaugeValue, f, name)
	}
}

func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

var _ prometheus.Collector = (*PrometheusExporter)(nil)
