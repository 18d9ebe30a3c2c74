package store

import (
	"context"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	"logsvc/internal/domain"
)

// ScoredEntry pairs a LogEntry with the raw score its retriever
// produced, before any cross-retriever fusion.
type ScoredEntry struct {
	Entry *domain.LogEntry
	Score float64
}

// SearchBM25 ranks entries by Postgres's websearch_to_tsquery /
// ts_rank_cd against the weighted search_vector column.
func (s *Store) SearchBM25(ctx context.Context, query string, f ListLogsFilter, limit int) ([]ScoredEntry, error) {
	var results []ScoredEntry
	err := withSpan(ctx, "store.SearchBM25", func(ctx context.Context) error {
		where, args := buildLogFilterClause(f)
		args = append(args, query)
		tsArg := fmt.Sprintf("$%d", len(args))

		rankedWhere := where
		matchCond := fmt.Sprintf("search_vector @@ websearch_to_tsquery('english', %s)", tsArg)
		if rankedWhere == "" {
			rankedWhere = " WHERE " + matchCond
		} else {
			rankedWhere += " AND " + matchCond
		}

		args = append(args, limit)
		limitArg := fmt.Sprintf("$%d", len(args))

		sqlQuery := fmt.Sprintf(
			logEntrySelectColumns+`, ts_rank_cd(search_vector, websearch_to_tsquery('english', %s), 32) AS rank
			FROM log_entries%s ORDER BY rank DESC LIMIT %s`, tsArg, rankedWhere, limitArg)

		rows, err := s.db.Query(ctx, sqlQuery, args...)
		if err != nil {
			return fmt.Errorf("search bm25: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			e, rank, err := scanLogEntryWithRank(rows)
			if err != nil {
				return fmt.Errorf("scan bm25 result: %w", err)
			}
			results = append(results, ScoredEntry{Entry: e, Score: rank})
		}
		return rows.Err()
	})
	return results, err
}

// SearchVector ranks entries by cosine similarity to the query
// embedding, restricted to rows that have an embedding at all.
func (s *Store) SearchVector(ctx context.Context, embedding []float32, f ListLogsFilter, limit int) ([]ScoredEntry, error) {
	var results []ScoredEntry
	err := withSpan(ctx, "store.SearchVector", func(ctx context.Context) error {
		where, args := buildLogFilterClause(f)
		vec := pgvector.NewVector(embedding)
		args = append(args, vec)
		vecArg := fmt.Sprintf("$%d", len(args))

		embedWhere := where
		if embedWhere == "" {
			embedWhere = " WHERE embedding IS NOT NULL"
		} else {
			embedWhere += " AND embedding IS NOT NULL"
		}

		args = append(args, limit)
		limitArg := fmt.Sprintf("$%d", len(args))

		sqlQuery := fmt.Sprintf(
			logEntrySelectColumns+`, 1 - (embedding <=> %s) AS similarity
			FROM log_entries%s ORDER BY embedding <=> %s LIMIT %s`,
			vecArg, embedWhere, vecArg, limitArg)

		rows, err := s.db.Query(ctx, sqlQuery, args...)
		if err != nil {
			return fmt.Errorf("search vector: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			e, similarity, err := scanLogEntryWithRank(rows)
			if err != nil {
				return fmt.Errorf("scan vector result: %w", err)
			}
			results = append(results, ScoredEntry{Entry: e, Score: similarity})
		}
		return rows.Err()
	})
	return results, err
}

// scannable is the pgx.Rows/pgx.Row subset scanLogEntryWithRank needs.
type scannable interface {
	Scan(dest ...any) error
}

func scanLogEntryWithRank(row scannable) (*domain.LogEntry, float64, error) {
	var e domain.LogEntry
	var ctxRaw []byte
	var embedding *pgvector.Vector
	var rank float64

	err := row.Scan(
		&e.ID, &e.Service, &e.Environment, &e.Host, &e.Version,
		&e.Level, &e.Message, &ctxRaw,
		&e.TraceID, &e.SpanID, &e.ParentSpanID,
		&e.RequestID, &e.UserID, &e.SessionID,
		&e.Timestamp, &e.CreatedAt, &e.DurationMs,
		&e.Model, &e.TokensIn, &e.TokensOut, &e.CostUSD,
		&e.ErrorType, &e.ErrorMessage, &e.StackTrace,
		&embedding, &e.EmbeddingModel,
		&rank,
	)
	if err != nil {
		return nil, 0, err
	}

	e.Context, err = unmarshalJSON(ctxRaw)
	if err != nil {
		return nil, 0, err
	}
	e.Embedding = embedding
	return &e, rank, nil
}

// ErrorGroupRow is one (error_type, message prefix) bucket in the
// grouped-errors view.
type ErrorGroupRow struct {
	ErrorType     string
	MessagePrefix string
	Count         int
	LastSeen      time.Time
}

// GroupErrors buckets errored entries in the trailing window by
// error_type and the first 100 characters of their message, most
// frequent bucket first.
func (s *Store) GroupErrors(ctx context.Context, service string, hours, limit int) ([]ErrorGroupRow, error) {
	var groups []ErrorGroupRow
	err := withSpan(ctx, "store.GroupErrors", func(ctx context.Context) error {
		since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
		query := `
			SELECT error_type, left(message, 100), count(*), max(timestamp)
			FROM log_entries
			WHERE timestamp >= $1 AND error_type != ''`
		args := []any{since}
		if service != "" {
			args = append(args, service)
			query += fmt.Sprintf(" AND service = $%d", len(args))
		}
		query += " GROUP BY error_type, left(message, 100) ORDER BY count(*) DESC"
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))

		rows, err := s.db.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("group errors: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var g ErrorGroupRow
			if err := rows.Scan(&g.ErrorType, &g.MessagePrefix, &g.Count, &g.LastSeen); err != nil {
				return fmt.Errorf("scan error group: %w", err)
			}
			groups = append(groups, g)
		}
		return rows.Err()
	})
	return groups, err
}

// SearchTextFallback is the ILIKE-only retriever used when neither
// BM25 nor vector signals are requested or available.
func (s *Store) SearchTextFallback(ctx context.Context, query string, f ListLogsFilter, limit int) ([]ScoredEntry, error) {
	f.Search = query
	result, err := s.ListLogs(ctx, withLimit(f, limit))
	if err != nil {
		return nil, err
	}
	scored := make([]ScoredEntry, len(result.Entries))
	for i, e := range result.Entries {
		scored[i] = ScoredEntry{Entry: e, Score: 1.0 / float64(i+1)}
	}
	return scored, nil
}

func withLimit(f ListLogsFilter, limit int) ListLogsFilter {
	f.Page = 1
	f.PageSize = limit
	return f
}
