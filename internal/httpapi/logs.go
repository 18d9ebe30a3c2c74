package httpapi

import (
	"net/http"

	"logsvc/internal/domain"
	"logsvc/internal/store"
)

// handleCreateLog is POST /v1/logs.
func (a *API) handleCreateLog(w http.ResponseWriter, r *http.Request) {
	var body logEntryDTO
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}

	entry, err := a.deps.Ingest.CreateEntry(r.Context(), entryToDomain(body))
	if err != nil {
		writeError(w, err)
		return
	}
	a.deps.Metrics.RecordIngest(1)
	writeJSON(w, http.StatusCreated, entryFromDomain(entry))
}

// batchResponseDTO is the wire shape of a batch ingest outcome.
type batchResponseDTO struct {
	Accepted int      `json:"accepted"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

type logsBatchRequestDTO struct {
	Entries []logEntryDTO `json:"entries"`
}

// handleCreateLogsBatch is POST /v1/logs/batch.
func (a *API) handleCreateLogsBatch(w http.ResponseWriter, r *http.Request) {
	var body logsBatchRequestDTO
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}

	entries := make([]*domain.LogEntry, len(body.Entries))
	for i, d := range body.Entries {
		entries[i] = entryToDomain(d)
	}

	result, err := a.deps.Ingest.CreateEntriesBatch(r.Context(), entries)
	if err != nil {
		writeError(w, err)
		return
	}
	a.deps.Metrics.RecordIngest(result.Accepted)
	status := http.StatusCreated
	if result.Accepted == 0 {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, batchResponseDTO{
		Accepted: result.Accepted,
		Failed:   result.Failed,
		Errors:   result.Errors,
	})
}

type listLogsResponseDTO struct {
	Logs     []logEntryDTO `json:"logs"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
	HasMore  bool          `json:"has_more"`
}

// handleListLogs is GET /v1/logs: the conjunction of every filter in
// over a paginated, timestamp-descending page.
func (a *API) handleListLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ListLogsFilter{
		Service:     q.Get("service"),
		Environment: q.Get("environment"),
		Level:       q.Get("level"),
		TraceID:     q.Get("trace_id"),
		SpanID:      q.Get("span_id"),
		RequestID:   q.Get("request_id"),
		UserID:      q.Get("user_id"),
		SessionID:   q.Get("session_id"),
		Model:       q.Get("model"),
		ErrorType:   q.Get("error_type"),
		Search:      q.Get("search"),
		Page:        queryInt(r, "page", 1),
		PageSize:    queryInt(r, "page_size", 50),
	}
	if v := q.Get("has_error"); v != "" {
		b := v == "true" || v == "1"
		filter.HasError = &b
	}
	if since, ok := parseQueryTime(q.Get("since")); ok {
		filter.Since = &since
	}
	if until, ok := parseQueryTime(q.Get("until")); ok {
		filter.Until = &until
	}
	if v := queryInt(r, "min_duration", -1); v >= 0 {
		filter.MinDuration = &v
	}
	if v := queryInt(r, "max_duration", -1); v >= 0 {
		filter.MaxDuration = &v
	}

	result, err := a.deps.Query.ListLogs(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	entries := make([]logEntryDTO, len(result.Entries))
	for i, e := range result.Entries {
		entries[i] = entryFromDomain(e)
	}
	writeJSON(w, http.StatusOK, listLogsResponseDTO{
		Logs:     entries,
		Total:    result.Total,
		Page:     result.Page,
		PageSize: result.PageSize,
		HasMore:  result.HasMore,
	})
}

// handleGetLog is GET /v1/logs/{id}.
func (a *API) handleGetLog(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	entry, err := a.deps.Query.GetLogEntry(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entryFromDomain(entry))
}

type traceResponseDTO struct {
	Entries         []logEntryDTO `json:"entries"`
	Services        []string      `json:"services"`
	SpanCount       int           `json:"span_count"`
	StartTime       string        `json:"start_time"`
	EndTime         string        `json:"end_time"`
	TotalDurationMs int           `json:"total_duration_ms"`
}

// handleGetTrace is GET /v1/logs/trace/{trace_id}.
func (a *API) handleGetTrace(w http.ResponseWriter, r *http.Request) {
	traceID := r.PathValue("trace_id")
	result, err := a.deps.Query.GetTrace(r.Context(), traceID)
	if err != nil {
		writeError(w, err)
		return
	}

	entries := make([]logEntryDTO, len(result.Entries))
	for i, e := range result.Entries {
		entries[i] = entryFromDomain(e)
	}
	writeJSON(w, http.StatusOK, traceResponseDTO{
		Entries:         entries,
		Services:        result.Services,
		SpanCount:       result.SpanCount,
		StartTime:       result.StartTime.Format(rfc3339Milli),
		EndTime:         result.EndTime.Format(rfc3339Milli),
		TotalDurationMs: result.TotalDurationMs,
	})
}

// handleListServices is GET /v1/logs/services.
func (a *API) handleListServices(w http.ResponseWriter, r *http.Request) {
	services, err := a.deps.Query.DistinctServices(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": services})
}

// handleListModels is GET /v1/logs/models.
func (a *API) handleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := a.deps.Query.DistinctModels(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": models})
}

type modelStatsDTO struct {
	Count     int     `json:"count"`
	TokensIn  int     `json:"tokens_in"`
	TokensOut int     `json:"tokens_out"`
	CostUSD   float64 `json:"cost_usd"`
}

type latencyStatsDTO struct {
	AvgMs float64 `json:"avg_ms"`
	MinMs float64 `json:"min_ms"`
	MaxMs float64 `json:"max_ms"`
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
	P99Ms float64 `json:"p99_ms"`
}

type statsResponseDTO struct {
	ByLevel   map[string]int           `json:"by_level"`
	ByService map[string]int           `json:"by_service"`
	ByModel   map[string]modelStatsDTO `json:"by_model"`
	ByError   map[string]int           `json:"by_error"`
	Latency   latencyStatsDTO          `json:"latency"`
}

// handleStats is GET /v1/logs/stats?service=&hours=.
func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	service := r.URL.Query().Get("service")
	hours := clamp(queryInt(r, "hours", 24), 1, 168)

	result, err := a.deps.Query.Stats(r.Context(), service, hours)
	if err != nil {
		writeError(w, err)
		return
	}

	byModel := make(map[string]modelStatsDTO, len(result.ByModel))
	for model, ms := range result.ByModel {
		byModel[model] = modelStatsDTO{
			Count:     ms.Count,
			TokensIn:  ms.TokensIn,
			TokensOut: ms.TokensOut,
			CostUSD:   ms.CostUSD,
		}
	}
	writeJSON(w, http.StatusOK, statsResponseDTO{
		ByLevel:   result.ByLevel,
		ByService: result.ByService,
		ByModel:   byModel,
		ByError:   result.ByError,
		Latency: latencyStatsDTO{
			AvgMs: result.Latency.Avg,
			MinMs: result.Latency.Min,
			MaxMs: result.Latency.Max,
			P50Ms: result.Latency.P50,
			P95Ms: result.Latency.P95,
			P99Ms: result.Latency.P99,
		},
	})
}
