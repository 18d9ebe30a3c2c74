package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"logsvc/internal/domain"
)

// DeleteOldLogEntries removes entries with timestamp older than cutoff,
// batchSize rows at a time, returning the total number removed.
// log_events cascade with their parent; spans and api_keys are untouched
// (see DESIGN.md — retention only honors the global window, not the
// unconsulted per-service RetentionPolicy table).
func (s *Store) DeleteOldLogEntries(ctx context.Context, cutoff time.Time, batchSize int) (int, error) {
	var total int
	err := withSpan(ctx, "store.DeleteOldLogEntries", func(ctx context.Context) error {
		for {
			tag, err := s.db.Exec(ctx, `
				DELETE FROM log_entries WHERE id IN (
					SELECT id FROM log_entries WHERE timestamp < $1 LIMIT $2
				)`, cutoff, batchSize)
			if err != nil {
				return fmt.Errorf("delete old log entries: %w", err)
			}
			n := int(tag.RowsAffected())
			total += n
			if n < batchSize {
				return nil
			}
		}
	})
	return total, err
}

// ListRetentionPolicies returns every per-service retention override.
// Nothing in the ingest or query path consults these yet — see
// DESIGN.md — but they're stored and exposed for forward compatibility.
func (s *Store) ListRetentionPolicies(ctx context.Context) ([]*domain.RetentionPolicy, error) {
	var policies []*domain.RetentionPolicy
	err := withSpan(ctx, "store.ListRetentionPolicies", func(ctx context.Context) error {
		rows, err := s.db.Query(ctx, `
			SELECT id, service, retention_days, created_at, updated_at
			FROM retention_policies ORDER BY service`)
		if err != nil {
			return fmt.Errorf("list retention policies: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var p domain.RetentionPolicy
			if err := rows.Scan(&p.ID, &p.Service, &p.RetentionDays, &p.CreatedAt, &p.UpdatedAt); err != nil {
				return fmt.Errorf("scan retention policy: %w", err)
			}
			policies = append(policies, &p)
		}
		return rows.Err()
	})
	return policies, err
}

// UpsertRetentionPolicy creates or updates the override for one service.
func (s *Store) UpsertRetentionPolicy(ctx context.Context, service string, days int) (*domain.RetentionPolicy, error) {
	var p *domain.RetentionPolicy
	err := withSpan(ctx, "store.UpsertRetentionPolicy", func(ctx context.Context) error {
		row := s.db.QueryRow(ctx, `
			INSERT INTO retention_policies (service, retention_days)
			VALUES ($1, $2)
			ON CONFLICT (service) DO UPDATE SET retention_days = $2, updated_at = now()
			RETURNING id, service, retention_days, created_at, updated_at`,
			service, days)
		var pol domain.RetentionPolicy
		if err := row.Scan(&pol.ID, &pol.Service, &pol.RetentionDays, &pol.CreatedAt, &pol.UpdatedAt); err != nil {
			return fmt.Errorf("upsert retention policy: %w", err)
		}
		p = &pol
		return nil
	})
	return p, err
}

// DeleteRetentionPolicy removes a service's override, if present.
func (s *Store) DeleteRetentionPolicy(ctx context.Context, service string) error {
	return withSpan(ctx, "store.DeleteRetentionPolicy", func(ctx context.Context) error {
		tag, err := s.db.Exec(ctx, `DELETE FROM retention_policies WHERE service = $1`, service)
		if err != nil {
			return fmt.Errorf("delete retention policy: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
}
