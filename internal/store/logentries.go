package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"logsvc/internal/domain"
	"logsvc/pkg/database"
)

// queryer is the subset of database.DB and pgx.Tx shared by insert
// helpers, letting them run either standalone or inside a transaction.
type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// InsertLogEntry writes one entry, returning its generated ID and
// timestamps. Callers that also have events should use
// InsertLogEntryWithEvents for atomicity.
func (s *Store) InsertLogEntry(ctx context.Context, e *domain.LogEntry) error {
	return withSpan(ctx, "store.InsertLogEntry", func(ctx context.Context) error {
		return s.insertLogEntryTx(ctx, s.db, e)
	})
}

func (s *Store) insertLogEntryTx(ctx context.Context, q queryer, e *domain.LogEntry) error {
	ctxJSON, err := marshalJSON(e.Context)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}

	timestamp := e.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	row := q.QueryRow(ctx, `
		INSERT INTO log_entries (
			service, environment, host, version,
			level, message, context,
			trace_id, span_id, parent_span_id,
			request_id, user_id, session_id,
			timestamp, duration_ms,
			model, tokens_in, tokens_out, cost_usd,
			error_type, error_message, stack_trace
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9, $10,
			$11, $12, $13,
			$14, $15,
			$16, $17, $18, $19,
			$20, $21, $22
		) RETURNING id, created_at`,
		e.Service, e.Environment, e.Host, e.Version,
		e.Level, e.Message, ctxJSON,
		e.TraceID, e.SpanID, e.ParentSpanID,
		e.RequestID, e.UserID, e.SessionID,
		timestamp, e.DurationMs,
		e.Model, e.TokensIn, e.TokensOut, e.CostUSD,
		e.ErrorType, e.ErrorMessage, e.StackTrace,
	)
	if err := row.Scan(&e.ID, &e.CreatedAt); err != nil {
		return fmt.Errorf("insert log entry: %w", err)
	}
	e.Timestamp = timestamp
	return nil
}

// InsertLogEntryWithEvents inserts an entry and its child events in a
// single transaction, so a batch ingest never leaves an entry without
// events that were submitted alongside it.
func (s *Store) InsertLogEntryWithEvents(ctx context.Context, e *domain.LogEntry) error {
	return withSpan(ctx, "store.InsertLogEntryWithEvents", func(ctx context.Context) error {
		return database.WithTransaction(ctx, s.db, func(tx pgx.Tx) error {
			if err := s.insertLogEntryTx(ctx, tx, e); err != nil {
				return err
			}
			for i := range e.Events {
				e.Events[i].LogEntryID = e.ID
				if err := s.insertLogEventTx(ctx, tx, &e.Events[i]); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// InsertLogEntriesBatch inserts every entry (with its events) in one
// transaction, so the accepted set of a batch ingest commits
// atomically — a mid-batch database failure leaves nothing behind.
func (s *Store) InsertLogEntriesBatch(ctx context.Context, entries []*domain.LogEntry) error {
	return withSpan(ctx, "store.InsertLogEntriesBatch", func(ctx context.Context) error {
		return database.WithTransaction(ctx, s.db, func(tx pgx.Tx) error {
			for _, e := range entries {
				if err := s.insertLogEntryTx(ctx, tx, e); err != nil {
					return err
				}
				for i := range e.Events {
					e.Events[i].LogEntryID = e.ID
					if err := s.insertLogEventTx(ctx, tx, &e.Events[i]); err != nil {
						return err
					}
				}
			}
			return nil
		})
	})
}

// GetLogEntry fetches one entry by ID, including its events.
func (s *Store) GetLogEntry(ctx context.Context, id uuid.UUID) (*domain.LogEntry, error) {
	var e *domain.LogEntry
	err := withSpan(ctx, "store.GetLogEntry", func(ctx context.Context) error {
		row := s.db.QueryRow(ctx, logEntrySelectColumns+` FROM log_entries WHERE id = $1`, id)
		var err error
		e, err = scanLogEntry(row)
		if err != nil {
			if errNoRows(err) {
				return pgx.ErrNoRows
			}
			return fmt.Errorf("get log entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	events, err := s.ListLogEvents(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	e.Events = events
	return e, nil
}

const logEntrySelectColumns = `SELECT
	id, service, environment, host, version,
	level, message, context,
	trace_id, span_id, parent_span_id,
	request_id, user_id, session_id,
	timestamp, created_at, duration_ms,
	model, tokens_in, tokens_out, cost_usd,
	error_type, error_message, stack_trace,
	embedding, embedding_model`

func scanLogEntry(row pgx.Row) (*domain.LogEntry, error) {
	var e domain.LogEntry
	var ctxRaw []byte
	var embedding *pgvector.Vector

	err := row.Scan(
		&e.ID, &e.Service, &e.Environment, &e.Host, &e.Version,
		&e.Level, &e.Message, &ctxRaw,
		&e.TraceID, &e.SpanID, &e.ParentSpanID,
		&e.RequestID, &e.UserID, &e.SessionID,
		&e.Timestamp, &e.CreatedAt, &e.DurationMs,
		&e.Model, &e.TokensIn, &e.TokensOut, &e.CostUSD,
		&e.ErrorType, &e.ErrorMessage, &e.StackTrace,
		&embedding, &e.EmbeddingModel,
	)
	if err != nil {
		return nil, err
	}

	e.Context, err = unmarshalJSON(ctxRaw)
	if err != nil {
		return nil, err
	}
	e.Embedding = embedding
	return &e, nil
}

// ListLogsFilter describes the conjunction of filters accepted by
// ListLogs. Zero values are "no filter" except Page/PageSize.
type ListLogsFilter struct {
	Service     string
	Environment string
	Level       string
	TraceID     string
	SpanID      string
	RequestID   string
	UserID      string
	SessionID   string
	Model       string
	ErrorType   string
	HasError    *bool
	Since       *time.Time
	Until       *time.Time
	MinDuration *int
	MaxDuration *int
	Search      string

	Page     int
	PageSize int
}

// ListLogsResult is one page of matching log entries.
type ListLogsResult struct {
	Entries  []*domain.LogEntry
	Total    int
	Page     int
	PageSize int
	HasMore  bool
}

// ListLogs returns a filtered, paginated, newest-first page of entries.
func (s *Store) ListLogs(ctx context.Context, f ListLogsFilter) (*ListLogsResult, error) {
	var result *ListLogsResult
	err := withSpan(ctx, "store.ListLogs", func(ctx context.Context) error {
		page, pageSize := normalizePaging(f.Page, f.PageSize)

		where, args := buildLogFilterClause(f)

		var total int
		countSQL := `SELECT count(*) FROM log_entries` + where
		if err := s.db.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
			return fmt.Errorf("count log entries: %w", err)
		}

		listArgs := append(append([]any{}, args...), pageSize, (page-1)*pageSize)
		listSQL := logEntrySelectColumns + ` FROM log_entries` + where +
			fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)

		rows, err := s.db.Query(ctx, listSQL, listArgs...)
		if err != nil {
			return fmt.Errorf("list log entries: %w", err)
		}
		defer rows.Close()

		var entries []*domain.LogEntry
		for rows.Next() {
			e, err := scanLogEntry(rows)
			if err != nil {
				return fmt.Errorf("scan log entry: %w", err)
			}
			entries = append(entries, e)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate log entries: %w", err)
		}

		result = &ListLogsResult{
			Entries:  entries,
			Total:    total,
			Page:     page,
			PageSize: pageSize,
			HasMore:  (page-1)*pageSize+len(entries) < total,
		}
		return nil
	})
	return result, err
}

func normalizePaging(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}
	if pageSize > 500 {
		pageSize = 500
	}
	return page, pageSize
}

// buildLogFilterClause renders f as a "WHERE ..." fragment (or "") and
// its positional args, mirroring the conjunction-of-filters contract
// used by ListLogs, stats, and the BM25/text retrievers.
func buildLogFilterClause(f ListLogsFilter) (string, []any) {
	var conds []string
	var args []any

	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Service != "" {
		add("service = $%d", f.Service)
	}
	if f.Environment != "" {
		add("environment = $%d", f.Environment)
	}
	if f.Level != "" {
		add("level = $%d", f.Level)
	}
	if f.TraceID != "" {
		add("trace_id = $%d", f.TraceID)
	}
	if f.SpanID != "" {
		add("span_id = $%d", f.SpanID)
	}
	if f.RequestID != "" {
		add("request_id = $%d", f.RequestID)
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.SessionID != "" {
		add("session_id = $%d", f.SessionID)
	}
	if f.Model != "" {
		add("model = $%d", f.Model)
	}
	if f.ErrorType != "" {
		add("error_type = $%d", f.ErrorType)
	}
	if f.HasError != nil {
		if *f.HasError {
			conds = append(conds, "error_type != ''")
		} else {
			conds = append(conds, "error_type = ''")
		}
	}
	if f.Since != nil {
		add("timestamp >= $%d", *f.Since)
	}
	if f.Until != nil {
		add("timestamp <= $%d", *f.Until)
	}
	if f.MinDuration != nil {
		add("duration_ms >= $%d", *f.MinDuration)
	}
	if f.MaxDuration != nil {
		add("duration_ms <= $%d", *f.MaxDuration)
	}
	if f.Search != "" {
		add("message ILIKE $%d", "%"+f.Search+"%")
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// DistinctServices returns the distinct set of services with any log
// entries, alphabetically ordered.
func (s *Store) DistinctServices(ctx context.Context) ([]string, error) {
	return s.distinctColumn(ctx, "store.DistinctServices", "service")
}

// DistinctModels returns the distinct, non-empty set of model names
// seen on ingested entries.
func (s *Store) DistinctModels(ctx context.Context) ([]string, error) {
	return s.distinctColumn(ctx, "store.DistinctModels", "model")
}

func (s *Store) distinctColumn(ctx context.Context, spanName, column string) ([]string, error) {
	var values []string
	err := withSpan(ctx, spanName, func(ctx context.Context) error {
		rows, err := s.db.Query(ctx, fmt.Sprintf(
			`SELECT DISTINCT %s FROM log_entries WHERE %s != '' ORDER BY %s`, column, column, column))
		if err != nil {
			return fmt.Errorf("distinct %s: %w", column, err)
		}
		defer rows.Close()
		for rows.Next() {
			var v string
			if err := rows.Scan(&v); err != nil {
				return err
			}
			values = append(values, v)
		}
		return rows.Err()
	})
	return values, err
}

// EmbeddingWrite pairs one entry ID with its computed embedding, the
// unit UpdateEmbeddingsBatch writes back.
type EmbeddingWrite struct {
	ID        uuid.UUID
	Embedding []float32
}

// UpdateEmbeddingsBatch writes back every entry in writes inside a
// single transaction, matching the pipeline's "commit once" write-back
// contract — a mid-batch failure leaves no partial writes.
func (s *Store) UpdateEmbeddingsBatch(ctx context.Context, writes []EmbeddingWrite, model string) error {
	return withSpan(ctx, "store.UpdateEmbeddingsBatch", func(ctx context.Context) error {
		return database.WithTransaction(ctx, s.db, func(tx pgx.Tx) error {
			for _, w := range writes {
				vec := pgvector.NewVector(w.Embedding)
				if _, err := tx.Exec(ctx,
					`UPDATE log_entries SET embedding = $1, embedding_model = $2 WHERE id = $3`,
					vec, model, w.ID); err != nil {
					return fmt.Errorf("update embedding for %s: %w", w.ID, err)
				}
			}
			return nil
		})
	})
}

// EligibleForEmbedding returns up to limit entries with no embedding
// yet, excluding the services/levels the pipeline never embeds, newest
// first, for the background embedding cycle.
func (s *Store) EligibleForEmbedding(ctx context.Context, excludedServices, excludedLevels []string, minMessageLength, limit int) ([]*domain.LogEntry, error) {
	var entries []*domain.LogEntry
	err := withSpan(ctx, "store.EligibleForEmbedding", func(ctx context.Context) error {
		rows, err := s.db.Query(ctx, `
			SELECT id, message FROM log_entries
			WHERE embedding IS NULL
			  AND service != ALL($1)
			  AND level != ALL($2)
			  AND length(message) >= $3
			ORDER BY timestamp DESC
			LIMIT $4`,
			excludedServices, excludedLevels, minMessageLength, limit)
		if err != nil {
			return fmt.Errorf("eligible for embedding: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var e domain.LogEntry
			if err := rows.Scan(&e.ID, &e.Message); err != nil {
				return err
			}
			entries = append(entries, &e)
		}
		return rows.Err()
	})
	return entries, err
}

