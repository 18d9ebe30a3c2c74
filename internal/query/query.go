// Package query implements the read side of the service: filtered
// listing, trace reconstruction, and time-windowed aggregations over
// log entries and spans.
package query

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"logsvc/internal/domain"
	"logsvc/internal/store"
	"logsvc/pkg/apperror"
)

// Store is the subset of *store.Store the query service depends on,
// narrowed so tests can substitute a fake.
type Store interface {
	ListLogs(ctx context.Context, f store.ListLogsFilter) (*store.ListLogsResult, error)
	GetLogEntry(ctx context.Context, id uuid.UUID) (*domain.LogEntry, error)
	DistinctServices(ctx context.Context) ([]string, error)
	DistinctModels(ctx context.Context) ([]string, error)
	CountByLevel(ctx context.Context, f store.StatsFilter) (map[string]int, error)
	CountByService(ctx context.Context, f store.StatsFilter) (map[string]int, error)
	CountByErrorType(ctx context.Context, f store.StatsFilter) (map[string]int, error)
	ModelCostStats(ctx context.Context, f store.StatsFilter) (map[string]store.ModelStats, error)
	Latency(ctx context.Context, f store.StatsFilter) (store.LatencyStats, error)
	ListSpans(ctx context.Context, f store.ListSpansFilter) (*store.ListSpansResult, error)
	ListSpansByTrace(ctx context.Context, traceID string) ([]*domain.Span, error)
}

// Service answers filtered list, trace, and stats queries.
type Service struct {
	store Store
}

func New(st Store) *Service {
	return &Service{store: st}
}

// ListLogs normalizes the level filter (if present) and delegates to
// the store's paginated conjunction-of-filters query.
func (s *Service) ListLogs(ctx context.Context, f store.ListLogsFilter) (*store.ListLogsResult, error) {
	if f.Level != "" {
		lvl, ok := domain.NormalizeLevel(f.Level)
		if !ok {
			return nil, apperror.NewValidationWithField("invalid level filter", "level")
		}
		f.Level = string(lvl)
	}
	return s.store.ListLogs(ctx, f)
}

// GetLogEntry fetches one entry with its events, or apperror NotFound
// if it doesn't exist.
func (s *Service) GetLogEntry(ctx context.Context, id uuid.UUID) (*domain.LogEntry, error) {
	entry, err := s.store.GetLogEntry(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NewNotFound("log entry not found")
		}
		return nil, apperror.Wrap(err, "failed to load log entry")
	}
	return entry, nil
}

func (s *Service) DistinctServices(ctx context.Context) ([]string, error) {
	return s.store.DistinctServices(ctx)
}

func (s *Service) DistinctModels(ctx context.Context) ([]string, error) {
	return s.store.DistinctModels(ctx)
}

// TraceResult is the trace-view response: matching entries plus
// the derived service set, span count, and timing envelope.
type TraceResult struct {
	Entries         []*domain.LogEntry
	Services        []string
	SpanCount       int
	StartTime       time.Time
	EndTime         time.Time
	TotalDurationMs int
}

// GetTrace reconstructs everything known about one trace_id across log
// entries. Returns apperror NotFound if nothing matches.
func (s *Service) GetTrace(ctx context.Context, traceID string) (*TraceResult, error) {
	result, err := s.store.ListLogs(ctx, store.ListLogsFilter{TraceID: traceID, Page: 1, PageSize: 500})
	if err != nil {
		return nil, apperror.Wrap(err, "failed to query trace")
	}
	if len(result.Entries) == 0 {
		return nil, apperror.NewNotFound("trace not found")
	}

	seenService := map[string]bool{}
	seenSpan := map[string]bool{}
	var services []string
	var start, end time.Time
	totalDuration := 0

	for _, e := range result.Entries {
		if !seenService[e.Service] {
			seenService[e.Service] = true
			services = append(services, e.Service)
		}
		if e.SpanID != "" && !seenSpan[e.SpanID] {
			seenSpan[e.SpanID] = true
		}
		if start.IsZero() || e.Timestamp.Before(start) {
			start = e.Timestamp
		}
		if end.IsZero() || e.Timestamp.After(end) {
			end = e.Timestamp
		}
		if e.DurationMs != nil {
			totalDuration += *e.DurationMs
		}
	}

	return &TraceResult{
		Entries:         result.Entries,
		Services:        services,
		SpanCount:       len(seenSpan),
		StartTime:       start,
		EndTime:         end,
		TotalDurationMs: totalDuration,
	}, nil
}

// StatsResult aggregates a time window of log activity.
type StatsResult struct {
	ByLevel   map[string]int
	ByService map[string]int
	ByModel   map[string]store.ModelStats
	ByError   map[string]int
	Latency   store.LatencyStats
}

// Stats computes the time-windowed aggregation. hours must already
// be clamped to [1,168] by the caller (the HTTP layer owns that).
func (s *Service) Stats(ctx context.Context, service string, hours int) (*StatsResult, error) {
	f := store.StatsFilter{Service: service, Hours: hours}

	byLevel, err := s.store.CountByLevel(ctx, f)
	if err != nil {
		return nil, apperror.Wrap(err, "failed to compute level stats")
	}
	byService, err := s.store.CountByService(ctx, f)
	if err != nil {
		return nil, apperror.Wrap(err, "failed to compute service stats")
	}
	byModel, err := s.store.ModelCostStats(ctx, f)
	if err != nil {
		return nil, apperror.Wrap(err, "failed to compute model stats")
	}
	byError, err := s.store.CountByErrorType(ctx, f)
	if err != nil {
		return nil, apperror.Wrap(err, "failed to compute error stats")
	}
	latency, err := s.store.Latency(ctx, f)
	if err != nil {
		return nil, apperror.Wrap(err, "failed to compute latency stats")
	}

	return &StatsResult{
		ByLevel:   byLevel,
		ByService: byService,
		ByModel:   byModel,
		ByError:   byError,
		Latency:   latency,
	}, nil
}

// ListSpans delegates to the store's paginated span query.
func (s *Service) ListSpans(ctx context.Context, f store.ListSpansFilter) (*store.ListSpansResult, error) {
	return s.store.ListSpans(ctx, f)
}

// SpanTraceResult is the tree-reconstruction response for GET
// /v1/spans/trace/{id}.
type SpanTraceResult struct {
	Roots []*domain.SpanNode
	Total int
}

// GetSpanTrace reconstructs the parent/child span forest for a trace.
func (s *Service) GetSpanTrace(ctx context.Context, traceID string) (*SpanTraceResult, error) {
	spans, err := s.store.ListSpansByTrace(ctx, traceID)
	if err != nil {
		return nil, apperror.Wrap(err, "failed to query span trace")
	}
	if len(spans) == 0 {
		return nil, apperror.NewNotFound("trace not found")
	}
	return &SpanTraceResult{
		Roots: store.BuildTraceTree(spans),
		Total: len(spans),
	}, nil
}
