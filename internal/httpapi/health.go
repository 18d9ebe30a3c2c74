package httpapi

import (
	"net/http"
)

type healthResponseDTO struct {
	Status   string `json:"status"`
	Pipeline string `json:"embedding_pipeline,omitempty"`
}

// handleHealth is GET /health, a public liveness probe.
func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponseDTO{Status: "ok"}
	if a.deps.Pipeline != nil {
		status := a.deps.Pipeline.Status()
		if status.Running {
			resp.Pipeline = "running"
		} else {
			resp.Pipeline = "disabled"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleMetricsJSON is GET /metrics, the JSON twin of the Prometheus
// rendering served at /metrics/prometheus.
func (a *API) handleMetricsJSON(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.deps.Metrics.Snapshot())
}

// handleMetricsPrometheus is GET /metrics/prometheus.
func (a *API) handleMetricsPrometheus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(a.deps.Metrics.RenderAll()))
}

// handleRoot is GET /, a minimal service banner.
func (a *API) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "logsvc",
		"status":  "ok",
	})
}
