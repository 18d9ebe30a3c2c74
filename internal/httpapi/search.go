package httpapi

import (
	"net/http"

	"logsvc/internal/search"
	"logsvc/internal/store"
)

type searchRequestDTO struct {
	Query   string `json:"query"`
	Mode    string `json:"mode,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	Service string `json:"service,omitempty"`
	Level   string `json:"level,omitempty"`
	Since   string `json:"since,omitempty"`
}

type signalScoreDTO struct {
	Signal string  `json:"signal"`
	Rank   int     `json:"rank"`
	Score  float64 `json:"score"`
}

type searchResultDTO struct {
	Log        logEntryDTO      `json:"log"`
	FusedScore float64          `json:"fused_score"`
	Similarity float64          `json:"similarity"`
	Signals    []signalScoreDTO `json:"signals,omitempty"`
}

type searchResponseDTO struct {
	Results  []searchResultDTO `json:"results"`
	ModeUsed string            `json:"mode_used"`
}

func resultsToDTO(results []search.Result) []searchResultDTO {
	out := make([]searchResultDTO, len(results))
	for i, res := range results {
		signals := make([]signalScoreDTO, len(res.Signals))
		for j, s := range res.Signals {
			signals[j] = signalScoreDTO{Signal: s.Signal, Rank: s.Rank, Score: s.Score}
		}
		out[i] = searchResultDTO{
			Log:        entryFromDomain(res.Entry),
			FusedScore: res.FusedScore,
			Similarity: res.NormalizedSimilarity,
			Signals:    signals,
		}
	}
	return out
}

// handleSemanticSearch is POST /v1/search/semantic.
func (a *API) handleSemanticSearch(w http.ResponseWriter, r *http.Request) {
	var body searchRequestDTO
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}

	filter := store.ListLogsFilter{Service: body.Service, Level: body.Level}
	if since, ok := parseQueryTime(body.Since); ok {
		filter.Since = &since
	}

	resp, err := a.deps.Search.Search(r.Context(), search.Query{
		Text:   body.Query,
		Mode:   search.Mode(body.Mode),
		Filter: filter,
		Limit:  body.Limit,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	a.deps.Metrics.RecordSearch(len(resp.Results))
	writeJSON(w, http.StatusOK, searchResponseDTO{
		Results:  resultsToDTO(resp.Results),
		ModeUsed: string(resp.ModeUsed),
	})
}

type similarRequestDTO struct {
	ID               string `json:"id"`
	ExcludeSameTrace bool   `json:"exclude_same_trace,omitempty"`
	Limit            int    `json:"limit,omitempty"`
}

// handleSimilarSearch is POST /v1/search/similar.
func (a *API) handleSimilarSearch(w http.ResponseWriter, r *http.Request) {
	var body similarRequestDTO
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	id, err := parseUUIDField(body.ID, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	results, err := a.deps.Search.SimilarLogs(r.Context(), id, body.ExcludeSameTrace, body.Limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponseDTO{Results: resultsToDTO(results), ModeUsed: "vector"})
}

type errorGroupDTO struct {
	ErrorType     string `json:"error_type"`
	MessagePrefix string `json:"message_prefix"`
	Count         int    `json:"count"`
	LastSeen      string `json:"last_seen,omitempty"`
}

// handleGroupedErrors is GET /v1/search/errors/grouped.
func (a *API) handleGroupedErrors(w http.ResponseWriter, r *http.Request) {
	service := r.URL.Query().Get("service")
	hours := clamp(queryInt(r, "hours", 24), 1, 168)

	groups, err := a.deps.Search.GroupedErrors(r.Context(), service, hours)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]errorGroupDTO, len(groups))
	for i, g := range groups {
		out[i] = errorGroupDTO{
			ErrorType:     g.ErrorType,
			MessagePrefix: g.MessagePrefix,
			Count:         g.Count,
		}
		if !g.LastSeen.IsZero() {
			out[i].LastSeen = g.LastSeen.UTC().Format(rfc3339Milli)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": out})
}

type windowStatsDTO struct {
	Total        int            `json:"total"`
	Errors       int            `json:"errors"`
	ErrorTypes   map[string]int `json:"error_types,omitempty"`
	AvgLatencyMs float64        `json:"avg_latency_ms"`
}

func windowStatsFromStore(ws *store.WindowStats) *windowStatsDTO {
	if ws == nil {
		return nil
	}
	return &windowStatsDTO{
		Total:        ws.Total,
		Errors:       ws.Errors,
		ErrorTypes:   ws.ErrorTypes,
		AvgLatencyMs: ws.AvgLatency,
	}
}

type anomalyDTO struct {
	Type       string          `json:"type"`
	Severity   string          `json:"severity"`
	Message    string          `json:"message"`
	Previous   *windowStatsDTO `json:"previous,omitempty"`
	Current    *windowStatsDTO `json:"current,omitempty"`
	ErrorTypes []string        `json:"error_types,omitempty"`
}

// handleAnomalies is GET /v1/search/anomalies.
func (a *API) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	service := r.URL.Query().Get("service")
	hours := clamp(queryInt(r, "hours", 24), 1, 168)

	findings, err := a.deps.Anomaly.Detect(r.Context(), service, hours)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]anomalyDTO, len(findings))
	for i, f := range findings {
		out[i] = anomalyDTO{
			Type:       f.Type,
			Severity:   string(f.Severity),
			Message:    f.Message,
			Previous:   windowStatsFromStore(f.Previous),
			Current:    windowStatsFromStore(f.Current),
			ErrorTypes: f.ErrorTypes,
		}
		if f.Severity != "" {
			a.deps.Metrics.RecordAnomaly()
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"anomalies": out})
}
