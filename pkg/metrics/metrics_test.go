package metrics

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordHTTPRequest(t *testing.T) {
	m := &Metrics{}
	m.RecordHTTPRequest("GET", "/v1/logs", 200, 0.05)
	m.RecordHTTPRequest("GET", "/v1/logs", 500, 0.2)

	out := m.Render()
	assert.Contains(t, out, `logsvc_http_requests_total{method="GET",path="/v1/logs",status="200"} 1`)
	assert.Contains(t, out, `logsvc_http_requests_total{method="GET",path="/v1/logs",status="500"} 1`)
}

func TestRecordIngest(t *testing.T) {
	m := &Metrics{}
	m.RecordIngest(5)
	m.RecordIngest(3)

	out := m.Render()
	assert.Contains(t, out, "logsvc_ingest_entries_total 8.000000")
	assert.Contains(t, out, "logsvc_ingest_batches_total 2.000000")
}

func TestRecordSearch(t *testing.T) {
	m := &Metrics{}
	m.RecordSearch(40)
	m.RecordSearch(60)

	out := m.Render()
	assert.Contains(t, out, "logsvc_search_queries_total 2.000000")
	assert.Contains(t, out, "logsvc_search_candidates_sum 100.000000")
}

func TestRecordEmbeddingCycle(t *testing.T) {
	m := &Metrics{}
	m.RecordEmbeddingCycle(50, 10, 1200)

	out := m.Render()
	assert.Contains(t, out, "logsvc_embedding_embedded_total 50.000000")
	assert.Contains(t, out, "logsvc_embedding_skipped_total 10.000000")
	assert.Contains(t, out, "logsvc_embedding_daily_count 1200.000000")
}

func TestRecordAnomaly(t *testing.T) {
	m := &Metrics{}
	m.RecordAnomaly()
	m.RecordAnomaly()

	out := m.Render()
	assert.Contains(t, out, "logsvc_anomalies_detected_total 2.000000")
}

func TestGet(t *testing.T) {
	assert.NotNil(t, Get())
	assert.Same(t, Get(), Get())
}

func TestRenderAll_IncludesRuntime(t *testing.T) {
	m := &Metrics{}
	out := m.RenderAll()
	assert.True(t, strings.Contains(out, "logsvc_runtime_goroutines"))
}
