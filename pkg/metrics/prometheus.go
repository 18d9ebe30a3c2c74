// Package metrics implements a minimal Prometheus text-exposition
// renderer over a handful of atomic counters and gauges. There is no
// label-cardinality machinery here — only the HTTP request metrics carry
// labels (method, route pattern, status), so a small hand-rolled
// registry is simpler than pulling in the full client library.
package metrics

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics is the process-wide counter set.
type Metrics struct {
	httpRequestsTotal  sync.Map // key: "method:path:status" -> *int64
	httpRequestSeconds sync.Map // key: "method:path" -> *durationSum
	statusCounts       sync.Map // key: status code -> *int64

	totalRequests     atomic.Int64
	errorCount        atomic.Int64
	latencySumNanos   atomic.Int64
	latencyCount      atomic.Int64

	ingestEntriesTotal  atomic.Int64
	ingestBatchesTotal  atomic.Int64
	searchQueriesTotal  atomic.Int64
	searchCandidatesSum atomic.Int64

	embeddingCyclesTotal   atomic.Int64
	embeddingEmbeddedTotal atomic.Int64
	embeddingSkippedTotal  atomic.Int64
	embeddingDailyCount    atomic.Int64

	anomaliesDetectedTotal atomic.Int64
}

// processStartTime marks when the metrics package was loaded, reported
// by Snapshot as the "start_time" field.
var processStartTime = time.Now()

// Snapshot is the current in-process counter set, as served by the
// `/metrics` introspection endpoint (the JSON twin of Render/RenderAll).
type Snapshot struct {
	StartTime       time.Time      `json:"start_time"`
	UptimeSeconds   float64        `json:"uptime_seconds"`
	TotalRequests   int64          `json:"total_requests"`
	ErrorCount      int64          `json:"error_count"`
	StatusCounts    map[int]int64  `json:"status_counts"`
	LatencySum      float64        `json:"latency_sum_seconds"`
	LatencyCount    int64          `json:"latency_count"`
}

// Snapshot returns the current counter values for JSON introspection.
func (m *Metrics) Snapshot() Snapshot {
	statusCounts := make(map[int]int64)
	m.statusCounts.Range(func(k, v any) bool {
		statusCounts[k.(int)] = v.(*atomic.Int64).Load()
		return true
	})
	return Snapshot{
		StartTime:     processStartTime,
		UptimeSeconds: time.Since(processStartTime).Seconds(),
		TotalRequests: m.totalRequests.Load(),
		ErrorCount:    m.errorCount.Load(),
		StatusCounts:  statusCounts,
		LatencySum:    float64(m.latencySumNanos.Load()) / 1e9,
		LatencyCount:  m.latencyCount.Load(),
	}
}

type durationSum struct {
	count atomic.Int64
	nanos atomic.Int64
}

var defaultMetrics = &Metrics{}

// Get returns the process-wide metrics instance.
func Get() *Metrics {
	return defaultMetrics
}

// RecordHTTPRequest records one completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, elapsedSeconds float64) {
	key := method + ":" + path + ":" + strconv.Itoa(status)
	counter, _ := m.httpRequestsTotal.LoadOrStore(key, new(atomic.Int64))
	counter.(*atomic.Int64).Add(1)

	durKey := method + ":" + path
	sum, _ := m.httpRequestSeconds.LoadOrStore(durKey, &durationSum{})
	ds := sum.(*durationSum)
	ds.count.Add(1)
	ds.nanos.Add(int64(elapsedSeconds * 1e9))

	statusCounter, _ := m.statusCounts.LoadOrStore(status, new(atomic.Int64))
	statusCounter.(*atomic.Int64).Add(1)

	m.totalRequests.Add(1)
	if status >= 400 {
		m.errorCount.Add(1)
	}
	m.latencyCount.Add(1)
	m.latencySumNanos.Add(int64(elapsedSeconds * 1e9))
}

// RecordIngest records one ingest call.
func (m *Metrics) RecordIngest(entryCount int) {
	m.ingestBatchesTotal.Add(1)
	m.ingestEntriesTotal.Add(int64(entryCount))
}

// RecordSearch records one ensemble search call.
func (m *Metrics) RecordSearch(candidateCount int) {
	m.searchQueriesTotal.Add(1)
	m.searchCandidatesSum.Add(int64(candidateCount))
}

// RecordEmbeddingCycle records the outcome of one embedding pipeline
// cycle: how many entries were embedded, whether the cycle was skipped
// by the daily cap, and the running daily counter.
func (m *Metrics) RecordEmbeddingCycle(embedded, skipped int, dailyCount int) {
	m.embeddingCyclesTotal.Add(1)
	m.embeddingEmbeddedTotal.Add(int64(embedded))
	m.embeddingSkippedTotal.Add(int64(skipped))
	m.embeddingDailyCount.Store(int64(dailyCount))
}

// RecordAnomaly records one detected anomaly.
func (m *Metrics) RecordAnomaly() {
	m.anomaliesDetectedTotal.Add(1)
}

// Render writes the current counters in Prometheus text exposition format.
func (m *Metrics) Render() string {
	var b strings.Builder

	b.WriteString("# HELP logsvc_http_requests_total Total HTTP requests by method, path and status\n")
	b.WriteString("# TYPE logsvc_http_requests_total counter\n")
	m.httpRequestsTotal.Range(func(k, v any) bool {
		parts := strings.SplitN(k.(string), ":", 3)
		fmt.Fprintf(&b, "logsvc_http_requests_total{method=%q,path=%q,status=%q} %d\n",
			parts[0], parts[1], parts[2], v.(*atomic.Int64).Load())
		return true
	})

	b.WriteString("# HELP logsvc_http_request_duration_seconds_sum Sum of HTTP request durations\n")
	b.WriteString("# TYPE logsvc_http_request_duration_seconds_sum counter\n")
	m.httpRequestSeconds.Range(func(k, v any) bool {
		parts := strings.SplitN(k.(string), ":", 2)
		ds := v.(*durationSum)
		fmt.Fprintf(&b, "logsvc_http_request_duration_seconds_sum{method=%q,path=%q} %f\n",
			parts[0], parts[1], float64(ds.nanos.Load())/1e9)
		fmt.Fprintf(&b, "logsvc_http_request_duration_seconds_count{method=%q,path=%q} %d\n",
			parts[0], parts[1], ds.count.Load())
		return true
	})

	writeGauge(&b, "logsvc_ingest_entries_total", "Total log entries ingested", float64(m.ingestEntriesTotal.Load()))
	writeGauge(&b, "logsvc_ingest_batches_total", "Total ingest calls", float64(m.ingestBatchesTotal.Load()))
	writeGauge(&b, "logsvc_search_queries_total", "Total ensemble search queries", float64(m.searchQueriesTotal.Load()))
	writeGauge(&b, "logsvc_search_candidates_sum", "Sum of candidates considered across searches", float64(m.searchCandidatesSum.Load()))
	writeGauge(&b, "logsvc_embedding_cycles_total", "Total embedding pipeline cycles", float64(m.embeddingCyclesTotal.Load()))
	writeGauge(&b, "logsvc_embedding_embedded_total", "Total log entries embedded", float64(m.embeddingEmbeddedTotal.Load()))
	writeGauge(&b, "logsvc_embedding_skipped_total", "Embedding cycles skipped by the daily cap", float64(m.embeddingSkippedTotal.Load()))
	writeGauge(&b, "logsvc_embedding_daily_count", "Embeddings produced so far in the current UTC day", float64(m.embeddingDailyCount.Load()))
	writeGauge(&b, "logsvc_anomalies_detected_total", "Total anomalies flagged", float64(m.anomaliesDetectedTotal.Load()))

	return b.String()
}

func writeGauge(b *strings.Builder, name, help string, value float64) {
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s gauge\n%s %f\n", name, help, name, name, value)
}
