package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"logsvc/internal/domain"
	"logsvc/pkg/database"
)

// InsertSpan writes one span. The (trace_id, span_id) pair is unique;
// a duplicate report of the same span is rejected by the database and
// surfaced to the caller as-is.
func (s *Store) InsertSpan(ctx context.Context, sp *domain.Span) error {
	return withSpan(ctx, "store.InsertSpan", func(ctx context.Context) error {
		return s.insertSpanTx(ctx, s.db, sp)
	})
}

func (s *Store) insertSpanTx(ctx context.Context, q queryer, sp *domain.Span) error {
	attrsJSON, err := marshalJSON(sp.Attributes)
	if err != nil {
		return fmt.Errorf("marshal span attributes: %w", err)
	}
	resourceJSON, err := marshalJSON(sp.Resource)
	if err != nil {
		return fmt.Errorf("marshal span resource: %w", err)
	}

	row := q.QueryRow(ctx, `
		INSERT INTO spans (
			trace_id, span_id, parent_span_id, service, operation, kind,
			start_time, end_time, duration_ms, status, status_message, attributes, resource
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at`,
		sp.TraceID, sp.SpanID, sp.ParentSpanID, sp.Service, sp.Operation, sp.Kind,
		sp.StartTime, sp.EndTime, sp.DurationMs, sp.Status, sp.StatusMessage, attrsJSON, resourceJSON,
	)
	if err := row.Scan(&sp.ID, &sp.CreatedAt); err != nil {
		return fmt.Errorf("insert span: %w", err)
	}
	return nil
}

// InsertSpansBatch inserts every span in one transaction, mirroring
// InsertLogEntriesBatch's all-or-nothing commit of a batch's accepted
// set.
func (s *Store) InsertSpansBatch(ctx context.Context, spans []*domain.Span) error {
	return withSpan(ctx, "store.InsertSpansBatch", func(ctx context.Context) error {
		return database.WithTransaction(ctx, s.db, func(tx pgx.Tx) error {
			for _, sp := range spans {
				if err := s.insertSpanTx(ctx, tx, sp); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

const spanSelectColumns = `SELECT
	id, trace_id, span_id, parent_span_id, service, operation, kind,
	start_time, end_time, duration_ms, status, status_message, attributes, resource, created_at`

func scanSpan(row pgx.Row) (*domain.Span, error) {
	var sp domain.Span
	var attrsRaw, resourceRaw []byte

	err := row.Scan(
		&sp.ID, &sp.TraceID, &sp.SpanID, &sp.ParentSpanID, &sp.Service, &sp.Operation, &sp.Kind,
		&sp.StartTime, &sp.EndTime, &sp.DurationMs, &sp.Status, &sp.StatusMessage, &attrsRaw, &resourceRaw, &sp.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	sp.Attributes, err = unmarshalJSON(attrsRaw)
	if err != nil {
		return nil, err
	}
	sp.Resource, err = unmarshalJSON(resourceRaw)
	if err != nil {
		return nil, err
	}
	return &sp, nil
}

// ListSpansByTrace returns every span recorded for a trace, in start
// order, the raw material for trace-tree reconstruction.
func (s *Store) ListSpansByTrace(ctx context.Context, traceID string) ([]*domain.Span, error) {
	var spans []*domain.Span
	err := withSpan(ctx, "store.ListSpansByTrace", func(ctx context.Context) error {
		rows, err := s.db.Query(ctx, spanSelectColumns+` FROM spans WHERE trace_id = $1 ORDER BY start_time`, traceID)
		if err != nil {
			return fmt.Errorf("list spans: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			sp, err := scanSpan(rows)
			if err != nil {
				return fmt.Errorf("scan span: %w", err)
			}
			spans = append(spans, sp)
		}
		return rows.Err()
	})
	return spans, err
}

// ListSpansFilter mirrors ListLogsFilter's conjunction-of-predicates
// contract, scoped to the columns a span query can filter on.
type ListSpansFilter struct {
	Service string
	TraceID string
	Kind    string
	Status  string
	Since   *time.Time
	Until   *time.Time

	Page     int
	PageSize int
}

// ListSpansResult is one page of matching spans.
type ListSpansResult struct {
	Spans    []*domain.Span
	Total    int
	Page     int
	PageSize int
	HasMore  bool
}

// ListSpans returns a filtered, paginated, newest-first page of spans.
func (s *Store) ListSpans(ctx context.Context, f ListSpansFilter) (*ListSpansResult, error) {
	var result *ListSpansResult
	err := withSpan(ctx, "store.ListSpans", func(ctx context.Context) error {
		page, pageSize := normalizePaging(f.Page, f.PageSize)

		where, args := buildSpanFilterClause(f)

		var total int
		if err := s.db.QueryRow(ctx, `SELECT count(*) FROM spans`+where, args...).Scan(&total); err != nil {
			return fmt.Errorf("count spans: %w", err)
		}

		listArgs := append(append([]any{}, args...), pageSize, (page-1)*pageSize)
		listSQL := spanSelectColumns + ` FROM spans` + where +
			fmt.Sprintf(" ORDER BY start_time DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)

		rows, err := s.db.Query(ctx, listSQL, listArgs...)
		if err != nil {
			return fmt.Errorf("list spans: %w", err)
		}
		defer rows.Close()

		var spans []*domain.Span
		for rows.Next() {
			sp, err := scanSpan(rows)
			if err != nil {
				return fmt.Errorf("scan span: %w", err)
			}
			spans = append(spans, sp)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate spans: %w", err)
		}

		result = &ListSpansResult{
			Spans:    spans,
			Total:    total,
			Page:     page,
			PageSize: pageSize,
			HasMore:  (page-1)*pageSize+len(spans) < total,
		}
		return nil
	})
	return result, err
}

func buildSpanFilterClause(f ListSpansFilter) (string, []any) {
	var conds []string
	var args []any

	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Service != "" {
		add("service = $%d", f.Service)
	}
	if f.TraceID != "" {
		add("trace_id = $%d", f.TraceID)
	}
	if f.Kind != "" {
		add("kind = $%d", f.Kind)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.Since != nil {
		add("start_time >= $%d", *f.Since)
	}
	if f.Until != nil {
		add("start_time <= $%d", *f.Until)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// BuildTraceTree reconstructs the parent/child span forest for a trace
// from its flat span list. Spans whose parent isn't present in the set
// (including true roots) become top-level nodes.
func BuildTraceTree(spans []*domain.Span) []*domain.SpanNode {
	nodes := make(map[string]*domain.SpanNode, len(spans))
	for _, sp := range spans {
		nodes[sp.SpanID] = &domain.SpanNode{Span: sp}
	}

	var roots []*domain.SpanNode
	for _, sp := range spans {
		node := nodes[sp.SpanID]
		parent, ok := nodes[sp.ParentSpanID]
		if sp.ParentSpanID == "" || !ok {
			roots = append(roots, node)
			continue
		}
		parent.Children = append(parent.Children, node)
	}
	return roots
}

// IsDuplicateSpan reports whether err is a unique-constraint violation
// on (trace_id, span_id).
func IsDuplicateSpan(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
