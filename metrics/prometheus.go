// Package metrics provides the kernel's one concrete MetricsExporter,
// adapted from the pack's private-registry/lazily-created-vec/cached-handler
// pattern (engine/telemetry/metrics/prometheus.go in 99souls-ariadne) onto
// this repo's fixed module-state/operation/memory metric set.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kerneld/kernel"
)

// PrometheusExporter implements kernel.MetricsExporter over a private
// registry so multiple Managers in one process never collide.
type PrometheusExporter struct {
	reg *prometheus.Registry

	mu sync.Mutex

	moduleState    *prometheus.GaugeVec
	opDuration     *prometheus.GaugeVec
	opFailures     *prometheus.GaugeVec
	opCount        *prometheus.GaugeVec
	heapGrowthRate *prometheus.GaugeVec

	handler http.Handler
}

// NewPrometheusExporter constructs an exporter with its own registry.
func NewPrometheusExporter() *PrometheusExporter {
	reg := prometheus.NewRegistry()

	moduleState := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kernel_module_state",
		Help: "Current lifecycle state of a module, as its ordinal value.",
	}, []string{"module"})
	opDuration := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kernel_operation_avg_duration_seconds",
		Help: "Average duration of a lifecycle operation for a module.",
	}, []string{"module", "operation"})
	opFailures := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kernel_operation_failures_total",
		Help: "Total recorded failures of a lifecycle operation for a module.",
	}, []string{"module", "operation"})
	opCount := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kernel_operation_count_total",
		Help: "Total recorded completions of a lifecycle operation for a module.",
	}, []string{"module", "operation"})
	heapGrowthRate := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kernel_module_heap_growth_rate_mb_per_hour",
		Help: "Heap growth rate attributed to a module's sampling ring.",
	}, []string{"module"})

	reg.MustRegister(moduleState, opDuration, opFailures, opCount, heapGrowthRate)

	return &PrometheusExporter{
		reg:            reg,
		moduleState:    moduleState,
		opDuration:     opDuration,
		opFailures:     opFailures,
		opCount:        opCount,
		heapGrowthRate: heapGrowthRate,
		handler:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
}

// Handler returns the cached HTTP handler exposing /metrics.
func (p *PrometheusExporter) Handler() http.Handler { return p.handler }

// Export implements kernel.MetricsExporter, updating every gauge from the
// fanned-out payload.
func (p *PrometheusExporter) Export(data kernel.ExportedMetrics) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, status := range data.Modules {
		p.moduleState.WithLabelValues(status.Name).Set(float64(status.State))
	}
	for module, ops := range data.Health {
		for op, m := range ops {
			p.opDuration.WithLabelValues(module, op).Set(m.AvgDuration.Seconds())
			p.opFailures.WithLabelValues(module, op).Set(float64(m.Failures))
			p.opCount.WithLabelValues(module, op).Set(float64(m.Count))
		}
	}
	for _, mod := range data.Memory.Modules {
		p.heapGrowthRate.WithLabelValues(mod.Module).Set(mod.GrowthRateMBh)
	}
	return nil
}
