package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"logsvc/internal/domain"
)

func (s *Store) insertLogEventTx(ctx context.Context, q queryer, e *domain.LogEvent) error {
	metaJSON, err := marshalJSON(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal event metadata: %w", err)
	}

	row := q.QueryRow(ctx, `
		INSERT INTO log_events (
			log_entry_id, event_type, content, content_type, metadata, sequence, duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		e.LogEntryID, e.EventType, e.Content, e.ContentType, metaJSON, e.Sequence, e.DurationMs,
	)
	if err := row.Scan(&e.ID, &e.CreatedAt); err != nil {
		return fmt.Errorf("insert log event: %w", err)
	}
	return nil
}

// ListLogEvents returns every event owned by logEntryID, ordered by
// sequence.
func (s *Store) ListLogEvents(ctx context.Context, logEntryID uuid.UUID) ([]domain.LogEvent, error) {
	var events []domain.LogEvent
	err := withSpan(ctx, "store.ListLogEvents", func(ctx context.Context) error {
		rows, err := s.db.Query(ctx, `
			SELECT id, log_entry_id, event_type, content, content_type, metadata, sequence, duration_ms, created_at
			FROM log_events WHERE log_entry_id = $1 ORDER BY sequence`, logEntryID)
		if err != nil {
			return fmt.Errorf("list log events: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var e domain.LogEvent
			var metaRaw []byte
			if err := rows.Scan(&e.ID, &e.LogEntryID, &e.EventType, &e.Content, &e.ContentType,
				&metaRaw, &e.Sequence, &e.DurationMs, &e.CreatedAt); err != nil {
				return fmt.Errorf("scan log event: %w", err)
			}
			e.Metadata, err = unmarshalJSON(metaRaw)
			if err != nil {
				return err
			}
			events = append(events, e)
		}
		return rows.Err()
	})
	return events, err
}
