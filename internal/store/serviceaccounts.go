package store

import (
	"context"
	"fmt"

	"logsvc/internal/domain"
)

// InsertServiceAccount registers a named service account for admin
// display. Nothing else in the service consults it.
func (s *Store) InsertServiceAccount(ctx context.Context, sa *domain.ServiceAccount) error {
	return withSpan(ctx, "store.InsertServiceAccount", func(ctx context.Context) error {
		row := s.db.QueryRow(ctx, `
			INSERT INTO service_accounts (name, description) VALUES ($1, $2)
			RETURNING id, created_at`, sa.Name, sa.Description)
		if err := row.Scan(&sa.ID, &sa.CreatedAt); err != nil {
			return fmt.Errorf("insert service account: %w", err)
		}
		return nil
	})
}

// ListServiceAccounts returns every registered service account.
func (s *Store) ListServiceAccounts(ctx context.Context) ([]*domain.ServiceAccount, error) {
	var accounts []*domain.ServiceAccount
	err := withSpan(ctx, "store.ListServiceAccounts", func(ctx context.Context) error {
		rows, err := s.db.Query(ctx, `SELECT id, name, description, created_at FROM service_accounts ORDER BY name`)
		if err != nil {
			return fmt.Errorf("list service accounts: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var sa domain.ServiceAccount
			if err := rows.Scan(&sa.ID, &sa.Name, &sa.Description, &sa.CreatedAt); err != nil {
				return fmt.Errorf("scan service account: %w", err)
			}
			accounts = append(accounts, &sa)
		}
		return rows.Err()
	})
	return accounts, err
}
