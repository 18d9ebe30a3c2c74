package httpapi

import (
	"net/http"

	"logsvc/internal/domain"
	"logsvc/internal/store"
)

// handleCreateSpan is POST /v1/spans.
func (a *API) handleCreateSpan(w http.ResponseWriter, r *http.Request) {
	var body spanDTO
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	sp, err := a.deps.Ingest.CreateSpan(r.Context(), spanToDomain(body))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, spanFromDomain(sp))
}

type spansBatchRequestDTO struct {
	Spans []spanDTO `json:"spans"`
}

// handleCreateSpansBatch is POST /v1/spans/batch.
func (a *API) handleCreateSpansBatch(w http.ResponseWriter, r *http.Request) {
	var body spansBatchRequestDTO
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	spans := make([]*domain.Span, len(body.Spans))
	for i, d := range body.Spans {
		spans[i] = spanToDomain(d)
	}
	result, err := a.deps.Ingest.CreateSpansBatch(r.Context(), spans)
	if err != nil {
		writeError(w, err)
		return
	}
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

type listSpansResponseDTO struct {
	Spans    []spanDTO `json:"spans"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
	HasMore  bool      `json:"has_more"`
}

// handleListSpans is GET /v1/spans.
func (a *API) handleListSpans(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ListSpansFilter{
		Service:  q.Get("service"),
		TraceID:  q.Get("trace_id"),
		Kind:     q.Get("kind"),
		Status:   q.Get("status"),
		Page:     queryInt(r, "page", 1),
		PageSize: queryInt(r, "page_size", 50),
	}
	if since, ok := parseQueryTime(q.Get("since")); ok {
		filter.Since = &since
	}
	if until, ok := parseQueryTime(q.Get("until")); ok {
		filter.Until = &until
	}

	result, err := a.deps.Query.ListSpans(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	spans := make([]spanDTO, len(result.Spans))
	for i, s := range result.Spans {
		spans[i] = spanFromDomain(s)
	}
	writeJSON(w, http.StatusOK, listSpansResponseDTO{
		Spans:    spans,
		Total:    result.Total,
		Page:     result.Page,
		PageSize: result.PageSize,
		HasMore:  result.HasMore,
	})
}

type spanTraceResponseDTO struct {
	Roots []spanNodeDTO `json:"roots"`
	Total int           `json:"total"`
}

// handleGetSpanTrace is GET /v1/spans/trace/{trace_id}.
func (a *API) handleGetSpanTrace(w http.ResponseWriter, r *http.Request) {
	traceID := r.PathValue("trace_id")
	result, err := a.deps.Query.GetSpanTrace(r.Context(), traceID)
	if err != nil {
		writeError(w, err)
		return
	}
	roots := make([]spanNodeDTO, len(result.Roots))
	for i, n := range result.Roots {
		roots[i] = spanNodeFromDomain(n)
	}
	writeJSON(w, http.StatusOK, spanTraceResponseDTO{Roots: roots, Total: result.Total})
}
