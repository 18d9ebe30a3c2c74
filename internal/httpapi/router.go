// Package httpapi wires the ingest, query, search, anomaly, and auth
// services onto the plain-JSON HTTP surface: a
// net/http.ServeMux with method+path routing, a small middleware chain
// (size limit, metrics, auth, rate limit), and one handler file per
// resource group.
package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"logsvc/internal/anomaly"
	"logsvc/internal/auth"
	"logsvc/internal/domain"
	"logsvc/internal/embedding"
	"logsvc/internal/ingest"
	"logsvc/internal/query"
	"logsvc/internal/retention"
	"logsvc/internal/search"
	"logsvc/pkg/apperror"
	"logsvc/pkg/metrics"
	"logsvc/pkg/ratelimit"
	"logsvc/pkg/telemetry"
)

// Deps are every collaborator the HTTP layer dispatches to. Nothing in
// this package touches the store directly.
type Deps struct {
	Ingest    *ingest.Service
	Query     *query.Service
	Search    *search.Engine
	Anomaly   *anomaly.Detector
	Auth      *auth.Service
	Pipeline  *embedding.Pipeline
	Retention *retention.Scheduler
	Limiter   ratelimit.Limiter
	Metrics   *metrics.Metrics

	MaxRequestBytes int64
}

// API holds the dependencies every handler closes over.
type API struct {
	deps Deps
	mux  *http.ServeMux
}

// NewRouter builds the full mux: public introspection routes plus the
// authenticated, rate-limited, size-limited v1 surface.
func NewRouter(deps Deps) http.Handler {
	a := &API{deps: deps}
	mux := http.NewServeMux()
	a.mux = mux

	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("GET /metrics", a.handleMetricsJSON)
	mux.HandleFunc("GET /metrics/prometheus", a.handleMetricsPrometheus)
	mux.HandleFunc("GET /{$}", a.handleRoot)

	mux.HandleFunc("POST /v1/logs", a.requireWrite(a.handleCreateLog))
	mux.HandleFunc("POST /v1/logs/batch", a.requireWrite(a.handleCreateLogsBatch))
	mux.HandleFunc("GET /v1/logs", a.requireRead(a.handleListLogs))
	mux.HandleFunc("GET /v1/logs/services", a.requireRead(a.handleListServices))
	mux.HandleFunc("GET /v1/logs/models", a.requireRead(a.handleListModels))
	mux.HandleFunc("GET /v1/logs/stats", a.requireRead(a.handleStats))
	mux.HandleFunc("GET /v1/logs/trace/{trace_id}", a.requireRead(a.handleGetTrace))
	mux.HandleFunc("GET /v1/logs/{id}", a.requireRead(a.handleGetLog))

	mux.HandleFunc("POST /v1/spans", a.requireWrite(a.handleCreateSpan))
	mux.HandleFunc("POST /v1/spans/batch", a.requireWrite(a.handleCreateSpansBatch))
	mux.HandleFunc("GET /v1/spans", a.requireRead(a.handleListSpans))
	mux.HandleFunc("GET /v1/spans/trace/{trace_id}", a.requireRead(a.handleGetSpanTrace))

	mux.HandleFunc("POST /v1/search/semantic", a.requireRead(a.handleSemanticSearch))
	mux.HandleFunc("POST /v1/search/similar", a.requireRead(a.handleSimilarSearch))
	mux.HandleFunc("GET /v1/search/errors/grouped", a.requireRead(a.handleGroupedErrors))
	mux.HandleFunc("GET /v1/search/anomalies", a.requireRead(a.handleAnomalies))

	mux.HandleFunc("GET /v1/admin/keys", a.requireMaster(a.handleListAPIKeys))
	mux.HandleFunc("POST /v1/admin/keys", a.requireMaster(a.handleCreateAPIKey))
	mux.HandleFunc("DELETE /v1/admin/keys/{id}", a.requireMaster(a.handleRevokeAPIKey))
	mux.HandleFunc("GET /v1/admin/accounts", a.requireMaster(a.handleListServiceAccounts))
	mux.HandleFunc("POST /v1/admin/accounts", a.requireMaster(a.handleCreateServiceAccount))
	mux.HandleFunc("GET /v1/admin/retention", a.requireMaster(a.handleListRetentionPolicies))
	mux.HandleFunc("PUT /v1/admin/retention/{service}", a.requireMaster(a.handleSetRetentionPolicy))
	mux.HandleFunc("DELETE /v1/admin/retention/{service}", a.requireMaster(a.handleDeleteRetentionPolicy))
	mux.HandleFunc("GET /v1/admin/pipeline", a.requireMaster(a.handleAdminPipeline))

	var handler http.Handler = mux
	handler = a.authenticate(handler)
	handler = a.rateLimit(handler)
	handler = a.recordMetrics(handler)
	handler = a.limitBody(handler)
	handler = telemetry.HTTPMiddleware(handler)
	return handler
}

// isPublicPath reports whether path bypasses bearer-key authentication
// and rate limiting: the health/metrics introspection surface and the
// /v1/admin/ prefix, which requireMaster guards instead.
func isPublicPath(path string) bool {
	switch {
	case path == "/health", path == "/metrics", path == "/metrics/prometheus", path == "/":
		return true
	default:
		return isAdminPath(path)
	}
}

// isAdminPath reports whether path belongs to the master-key admin
// surface, which authenticates independently via requireMaster rather
// than the per-key bearer flow the rest of the API uses.
func isAdminPath(path string) bool {
	return strings.HasPrefix(path, "/v1/admin/")
}

// limitBody rejects any request whose declared Content-Length exceeds
// the configured max, before the handler ever reads the body.
func (a *API) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.deps.MaxRequestBytes > 0 {
			if r.ContentLength > a.deps.MaxRequestBytes {
				writeError(w, apperror.NewOversize("request body exceeds the configured maximum size"))
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, a.deps.MaxRequestBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// recordMetrics records one completed request's method, route pattern,
// status, and latency into the process-wide counters.
func (a *API) recordMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		// Label by route pattern, not raw path, so per-ID URLs don't
		// explode metric cardinality. r.Pattern is only set on the
		// request the mux hands the handler, so re-resolve it here.
		_, pattern := a.mux.Handler(r)
		if pattern == "" {
			pattern = r.URL.Path
		}
		a.deps.Metrics.RecordHTTPRequest(r.Method, pattern, sw.status, time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (s *statusWriter) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// authenticate extracts the bearer token, looks up the API key, and
// attaches it to the request context. Public paths and missing keys on
// those paths pass through untouched; everything else without a valid
// key fails fast with 401 so downstream scope checks never run against
// a nil key.
func (a *API) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token := bearerToken(r)
		key, err := a.deps.Auth.Authenticate(r.Context(), token)
		if err != nil {
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withAPIKey(r.Context(), key)))
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(h, prefix) {
		return strings.TrimPrefix(h, prefix)
	}
	return ""
}

// rateLimit enforces the per-key sliding window, keyed by the first 13
// characters of the bearer token (or the client address if absent).
func (a *API) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicPath(r.URL.Path) || a.deps.Limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := ratelimit.KeyFromBearer(bearerToken(r), r.RemoteAddr)
		allowed, err := a.deps.Limiter.Allow(r.Context(), key)
		if err != nil {
			writeError(w, apperror.Wrap(err, "rate limiter unavailable"))
			return
		}
		if !allowed {
			info, _ := a.deps.Limiter.GetInfo(r.Context(), key)
			retryAfter := 0
			if info != nil {
				retryAfter = int(info.RetryAfter.Seconds())
				if retryAfter < 0 {
					retryAfter = 0
				}
			}
			writeError(w, apperror.NewRateLimited("rate limit exceeded", retryAfter))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireWrite and requireRead wrap a handler with the matching scope
// check, run after authentication has attached the key to the context.
func (a *API) requireWrite(h http.HandlerFunc) http.HandlerFunc {
	return a.requireScope(auth.RequireWrite, h)
}

func (a *API) requireRead(h http.HandlerFunc) http.HandlerFunc {
	return a.requireScope(auth.RequireRead, h)
}

func (a *API) requireScope(check func(*domain.APIKey) error, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := apiKeyFromContext(r.Context())
		if key == nil {
			writeError(w, apperror.NewAuth("missing api key"))
			return
		}
		if err := check(key); err != nil {
			writeError(w, err)
			return
		}
		h(w, r)
	}
}

// pathID parses the {id} path parameter as a UUID, returning a shape
// error on malformed input.
func pathID(r *http.Request, name string) (uuid.UUID, error) {
	raw := r.PathValue(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperror.NewShape("invalid id").WithField(name)
	}
	return id, nil
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func parseUUIDField(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperror.NewValidationWithField("invalid uuid", field)
	}
	return id, nil
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
