package metrics

import (
	"fmt"
	"runtime"
	"strings"
)

// runtimeMetrics renders a handful of Go runtime gauges in the same
// text-exposition format as Render.
func runtimeMetrics() string {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	var b strings.Builder
	writeGauge(&b, "logsvc_runtime_goroutines", "Current number of goroutines", float64(runtime.NumGoroutine()))
	writeGauge(&b, "logsvc_runtime_memory_alloc_bytes", "Bytes allocated and still in use", float64(stats.Alloc))
	writeGauge(&b, "logsvc_runtime_memory_sys_bytes", "Bytes obtained from the OS", float64(stats.Sys))
	writeGauge(&b, "logsvc_runtime_gc_runs_total", "Total completed GC cycles", float64(stats.NumGC))
	return b.String()
}

// RenderAll renders the application counters plus Go runtime gauges,
// the full body served at /metrics/prometheus.
func (m *Metrics) RenderAll() string {
	var b strings.Builder
	fmt.Fprint(&b, m.Render())
	fmt.Fprint(&b, runtimeMetrics())
	return b.String()
}
