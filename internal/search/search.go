// Package search implements the ensemble retrieval engine: BM25,
// vector, and heuristic re-ranking fused by reciprocal rank fusion,
// plus similar-log and error-grouping queries.
package search

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"logsvc/internal/domain"
	"logsvc/internal/store"
	"logsvc/pkg/apperror"
	"logsvc/pkg/telemetry"
)

const (
	rrfK          = 60
	similarLimit  = 20
	errorGroupCap = 200
)

// Mode is a requested search strategy.
type Mode string

const (
	ModeEnsemble Mode = "ensemble"
	ModeVector   Mode = "vector"
	ModeBM25     Mode = "bm25"
	ModeText     Mode = "text"
)

func validMode(m Mode) bool {
	switch m {
	case ModeEnsemble, ModeVector, ModeBM25, ModeText, "":
		return true
	default:
		return false
	}
}

// EmbedClient is the subset of *embedding.Client the search engine needs.
type EmbedClient interface {
	Configured() bool
	EmbedOne(ctx context.Context, input string) ([]float32, error)
}

// Store is the subset of *store.Store the search engine depends on.
type Store interface {
	SearchBM25(ctx context.Context, query string, f store.ListLogsFilter, limit int) ([]store.ScoredEntry, error)
	SearchVector(ctx context.Context, embedding []float32, f store.ListLogsFilter, limit int) ([]store.ScoredEntry, error)
	SearchTextFallback(ctx context.Context, query string, f store.ListLogsFilter, limit int) ([]store.ScoredEntry, error)
	GetLogEntry(ctx context.Context, id uuid.UUID) (*domain.LogEntry, error)
	GroupErrors(ctx context.Context, service string, hours, limit int) ([]store.ErrorGroupRow, error)
}

// Engine answers ensemble/vector/bm25/text search queries.
type Engine struct {
	store        Store
	embed        EmbedClient
	queryTimeout time.Duration
}

func New(st Store, embed EmbedClient) *Engine {
	return &Engine{store: st, embed: embed, queryTimeout: 30 * time.Second}
}

// Query is one search request.
type Query struct {
	Text   string
	Mode   Mode
	Filter store.ListLogsFilter
	Limit  int
}

// SignalScore is one retriever's contribution to a fused document.
type SignalScore struct {
	Signal string
	Rank   int
	Score  float64
}

// Result is one document in a fused result set.
type Result struct {
	Entry                *domain.LogEntry
	FusedScore           float64
	NormalizedSimilarity float64
	Signals              []SignalScore
}

// Response is the full engine answer: the ranked results plus which
// mode actually ran (after any graceful degradation).
type Response struct {
	Results  []Result
	ModeUsed Mode
}

// Search runs q.Mode (applying the vector→ensemble→text degradation
// chain when a signal is unavailable) and returns fused, ranked results.
func (e *Engine) Search(ctx context.Context, q Query) (*Response, error) {
	if !validMode(q.Mode) {
		return nil, apperror.NewValidationWithField("invalid search mode", "mode")
	}
	if q.Limit <= 0 {
		q.Limit = 20
	}
	poolSize := q.Limit * 3
	if poolSize > 100 {
		poolSize = 100
	}

	mode := q.Mode
	if mode == "" {
		mode = ModeEnsemble
	}

	var resp *Response
	var err error
	switch mode {
	case ModeText:
		resp, err = e.searchText(ctx, q, poolSize)
	case ModeBM25:
		resp, err = e.searchBM25Only(ctx, q, poolSize)
	case ModeVector:
		vec, ok := e.tryEmbed(ctx, q.Text)
		if !ok {
			resp, err = e.searchEnsemble(ctx, q, poolSize)
		} else {
			resp, err = e.searchVectorOnly(ctx, q, vec, poolSize)
		}
	default:
		resp, err = e.searchEnsemble(ctx, q, poolSize)
	}
	if err != nil {
		return nil, err
	}

	telemetry.SetAttributes(ctx, telemetry.SearchAttributes(
		string(resp.ModeUsed), len(resp.Results), resp.signalNames())...)
	return resp, nil
}

// signalNames collects the distinct retriever names that contributed to
// any result, for span attribution.
func (r *Response) signalNames() []string {
	seen := map[string]bool{}
	var names []string
	for _, res := range r.Results {
		for _, s := range res.Signals {
			if !seen[s.Signal] {
				seen[s.Signal] = true
				names = append(names, s.Signal)
			}
		}
	}
	sort.Strings(names)
	return names
}

func (e *Engine) tryEmbed(ctx context.Context, text string) ([]float32, bool) {
	if e.embed == nil || !e.embed.Configured() {
		return nil, false
	}
	embedCtx, cancel := context.WithTimeout(ctx, e.queryTimeout)
	defer cancel()
	vec, err := e.embed.EmbedOne(embedCtx, text)
	if err != nil {
		return nil, false
	}
	return vec, true
}

func (e *Engine) searchText(ctx context.Context, q Query, poolSize int) (*Response, error) {
	scored, err := e.store.SearchTextFallback(ctx, q.Text, q.Filter, poolSize)
	if err != nil {
		return nil, apperror.Wrap(err, "text search failed")
	}
	return fuse(map[string][]store.ScoredEntry{"text": scored}, q.Limit, ModeText), nil
}

func (e *Engine) searchBM25Only(ctx context.Context, q Query, poolSize int) (*Response, error) {
	scored, err := e.store.SearchBM25(ctx, q.Text, q.Filter, poolSize)
	if err != nil {
		return nil, apperror.Wrap(err, "bm25 search failed")
	}
	return fuse(map[string][]store.ScoredEntry{"bm25": scored}, q.Limit, ModeBM25), nil
}

func (e *Engine) searchVectorOnly(ctx context.Context, q Query, vec []float32, poolSize int) (*Response, error) {
	scored, err := e.store.SearchVector(ctx, vec, q.Filter, poolSize)
	if err != nil {
		return nil, apperror.Wrap(err, "vector search failed")
	}
	return fuse(map[string][]store.ScoredEntry{"vector": scored}, q.Limit, ModeVector), nil
}

// searchEnsemble runs every signal it can and fuses them. If no signal
// produced any candidate, degrades to text.
func (e *Engine) searchEnsemble(ctx context.Context, q Query, poolSize int) (*Response, error) {
	signals := map[string][]store.ScoredEntry{}

	if bm25, err := e.store.SearchBM25(ctx, q.Text, q.Filter, poolSize); err == nil && len(bm25) > 0 {
		signals["bm25"] = bm25
	}

	if vec, ok := e.tryEmbed(ctx, q.Text); ok {
		if vecResults, err := e.store.SearchVector(ctx, vec, q.Filter, poolSize); err == nil && len(vecResults) > 0 {
			signals["vector"] = vecResults
		}
	}

	if heuristic := heuristicRerank(signals); len(heuristic) > 0 {
		signals["heuristic"] = heuristic
	}

	if len(signals) == 0 {
		return e.searchText(ctx, q, poolSize)
	}
	return fuse(signals, q.Limit, ModeEnsemble), nil
}

// heuristicRerank re-scores the union of candidates already surfaced by
// other signals; it never originates new candidates.
func heuristicRerank(signals map[string][]store.ScoredEntry) []store.ScoredEntry {
	seen := map[uuid.UUID]*domain.LogEntry{}
	for _, scored := range signals {
		for _, s := range scored {
			seen[s.Entry.ID] = s.Entry
		}
	}
	if len(seen) == 0 {
		return nil
	}

	now := time.Now().UTC()
	out := make([]store.ScoredEntry, 0, len(seen))
	for _, entry := range seen {
		ageHours := now.Sub(entry.Timestamp.UTC()).Hours()
		if ageHours < 0 {
			ageHours = 0
		}
		recency := math.Pow(2, -ageHours/24)
		score := 0.6*domain.LevelWeight(entry.Level) + 0.4*recency
		out = append(out, store.ScoredEntry{Entry: entry, Score: score})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// fuse applies reciprocal rank fusion across signals (each already
// sorted by descending score) and returns the top limit documents.
func fuse(signals map[string][]store.ScoredEntry, limit int, mode Mode) *Response {
	type accum struct {
		entry   *domain.LogEntry
		fused   float64
		signals []SignalScore
	}
	byID := map[uuid.UUID]*accum{}

	for name, scored := range signals {
		for rank, s := range scored {
			r := rank + 1
			contribution := 1.0 / float64(rrfK+r)
			a, ok := byID[s.Entry.ID]
			if !ok {
				a = &accum{entry: s.Entry}
				byID[s.Entry.ID] = a
			}
			a.fused += contribution
			a.signals = append(a.signals, SignalScore{Signal: name, Rank: r, Score: s.Score})
		}
	}

	results := make([]Result, 0, len(byID))
	maxPerSignal := 1.0 / float64(rrfK+1)
	for _, a := range byID {
		normalizer := float64(len(a.signals)) * maxPerSignal
		normalized := 0.0
		if normalizer > 0 {
			normalized = a.fused / normalizer
		}
		results = append(results, Result{
			Entry:                a.entry,
			FusedScore:           a.fused,
			NormalizedSimilarity: normalized,
			Signals:              a.signals,
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].FusedScore > results[j].FusedScore })
	if len(results) > limit {
		results = results[:limit]
	}
	return &Response{Results: results, ModeUsed: mode}
}

// SimilarLogs finds entries near the reference entry: vector search
// using its own embedding when present, excluding itself and optionally
// entries from the same trace, else an ILIKE fallback on the first 50
// characters of its message.
func (e *Engine) SimilarLogs(ctx context.Context, id uuid.UUID, excludeSameTrace bool, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = similarLimit
	}
	ref, err := e.store.GetLogEntry(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NewNotFound("log entry not found")
		}
		return nil, apperror.Wrap(err, "failed to load reference entry")
	}

	filter := store.ListLogsFilter{}
	var scored []store.ScoredEntry
	if ref.Embedding != nil {
		scored, err = e.store.SearchVector(ctx, ref.Embedding.Slice(), filter, limit+1)
	} else {
		prefix := ref.Message
		if len(prefix) > 50 {
			prefix = prefix[:50]
		}
		scored, err = e.store.SearchTextFallback(ctx, prefix, filter, limit+1)
	}
	if err != nil {
		return nil, apperror.Wrap(err, "similar-log search failed")
	}

	out := make([]Result, 0, limit)
	for _, s := range scored {
		if s.Entry.ID == id {
			continue
		}
		if excludeSameTrace && ref.TraceID != "" && s.Entry.TraceID == ref.TraceID {
			continue
		}
		out = append(out, Result{Entry: s.Entry, FusedScore: s.Score, NormalizedSimilarity: s.Score})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ErrorGroup is one bucket of errors sharing an error_type and the
// first 100 characters of their message.
type ErrorGroup struct {
	ErrorType     string
	MessagePrefix string
	Count         int
	LastSeen      time.Time
}

// GroupedErrors buckets errored entries in the window by
// (error_type, message prefix), most frequent first.
func (e *Engine) GroupedErrors(ctx context.Context, service string, hours int) ([]ErrorGroup, error) {
	rows, err := e.store.GroupErrors(ctx, service, hours, errorGroupCap)
	if err != nil {
		return nil, apperror.Wrap(err, "failed to group errors")
	}
	groups := make([]ErrorGroup, len(rows))
	for i, row := range rows {
		groups[i] = ErrorGroup{
			ErrorType:     row.ErrorType,
			MessagePrefix: row.MessagePrefix,
			Count:         row.Count,
			LastSeen:      row.LastSeen,
		}
	}
	return groups, nil
}
