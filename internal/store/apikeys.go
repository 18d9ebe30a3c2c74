package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"logsvc/internal/domain"
)

// InsertAPIKey writes a newly generated key's hash and scopes. The
// plaintext key never passes through the store.
func (s *Store) InsertAPIKey(ctx context.Context, k *domain.APIKey) error {
	return withSpan(ctx, "store.InsertAPIKey", func(ctx context.Context) error {
		row := s.db.QueryRow(ctx, `
			INSERT INTO api_keys (name, description, key_hash, key_prefix, can_write, can_read, can_admin)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, created_at`,
			k.Name, k.Description, k.KeyHash, k.KeyPrefix, k.CanWrite, k.CanRead, k.CanAdmin,
		)
		if err := row.Scan(&k.ID, &k.CreatedAt); err != nil {
			return fmt.Errorf("insert api key: %w", err)
		}
		return nil
	})
}

const apiKeySelectColumns = `SELECT
	id, name, description, key_hash, key_prefix,
	can_write, can_read, can_admin, revoked, revoked_at, created_at, last_used_at`

func scanAPIKey(row pgx.Row) (*domain.APIKey, error) {
	var k domain.APIKey
	err := row.Scan(
		&k.ID, &k.Name, &k.Description, &k.KeyHash, &k.KeyPrefix,
		&k.CanWrite, &k.CanRead, &k.CanAdmin, &k.Revoked, &k.RevokedAt, &k.CreatedAt, &k.LastUsedAt,
	)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// GetAPIKeyByHash looks up an active (non-revoked) key by its SHA-256
// hash, the hot path hit on every authenticated request.
func (s *Store) GetAPIKeyByHash(ctx context.Context, hash string) (*domain.APIKey, error) {
	var key *domain.APIKey
	err := withSpan(ctx, "store.GetAPIKeyByHash", func(ctx context.Context) error {
		row := s.db.QueryRow(ctx, apiKeySelectColumns+` FROM api_keys WHERE key_hash = $1 AND revoked = false`, hash)
		var err error
		key, err = scanAPIKey(row)
		if err != nil {
			if errNoRows(err) {
				return pgx.ErrNoRows
			}
			return fmt.Errorf("get api key by hash: %w", err)
		}
		return nil
	})
	return key, err
}

// TouchLastUsed best-effort updates last_used_at; auth does not fail a
// request if this write fails.
func (s *Store) TouchLastUsed(ctx context.Context, id uuid.UUID) error {
	return withSpan(ctx, "store.TouchLastUsed", func(ctx context.Context) error {
		_, err := s.db.Exec(ctx, `UPDATE api_keys SET last_used_at = $1 WHERE id = $2`, time.Now().UTC(), id)
		if err != nil {
			return fmt.Errorf("touch api key last_used_at: %w", err)
		}
		return nil
	})
}

// ListAPIKeys returns every key (including revoked ones), newest first,
// for the admin listing endpoint.
func (s *Store) ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error) {
	var keys []*domain.APIKey
	err := withSpan(ctx, "store.ListAPIKeys", func(ctx context.Context) error {
		rows, err := s.db.Query(ctx, apiKeySelectColumns+` FROM api_keys ORDER BY created_at DESC`)
		if err != nil {
			return fmt.Errorf("list api keys: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			k, err := scanAPIKey(rows)
			if err != nil {
				return fmt.Errorf("scan api key: %w", err)
			}
			keys = append(keys, k)
		}
		return rows.Err()
	})
	return keys, err
}

// RevokeAPIKey marks a key revoked. It never deletes the row, keeping
// the audit trail of who held which scopes intact.
func (s *Store) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	return withSpan(ctx, "store.RevokeAPIKey", func(ctx context.Context) error {
		tag, err := s.db.Exec(ctx,
			`UPDATE api_keys SET revoked = true, revoked_at = $1 WHERE id = $2 AND revoked = false`,
			time.Now().UTC(), id)
		if err != nil {
			return fmt.Errorf("revoke api key: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
}
