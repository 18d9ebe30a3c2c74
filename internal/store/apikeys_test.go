package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logsvc/internal/domain"
)

func apiKeyRow() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "name", "description", "key_hash", "key_prefix",
		"can_write", "can_read", "can_admin", "revoked", "revoked_at", "created_at", "last_used_at",
	})
}

func TestInsertAPIKey_ScansGeneratedIDAndCreatedAt(t *testing.T) {
	mock, s := setupMockStore(t)

	id := uuid.New()
	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{"id", "created_at"}).AddRow(id, now)

	mock.ExpectQuery(`INSERT INTO api_keys`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(rows)

	k := &domain.APIKey{Name: "ci-bot", KeyHash: "deadbeef", KeyPrefix: "logr_dead", CanWrite: true}
	err := s.InsertAPIKey(context.Background(), k)

	require.NoError(t, err)
	assert.Equal(t, id, k.ID)
	assert.Equal(t, now, k.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAPIKeyByHash_ReturnsActiveKey(t *testing.T) {
	mock, s := setupMockStore(t)

	id := uuid.New()
	now := time.Now().UTC()
	rows := apiKeyRow().AddRow(id, "ci-bot", "", "deadbeef", "logr_dead", false, true, false, false, nil, now, nil)

	mock.ExpectQuery(`SELECT`).WithArgs("deadbeef").WillReturnRows(rows)

	k, err := s.GetAPIKeyByHash(context.Background(), "deadbeef")

	require.NoError(t, err)
	assert.Equal(t, id, k.ID)
	assert.True(t, k.CanRead)
	assert.False(t, k.CanWrite)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAPIKeyByHash_UnknownHashIsNotFound(t *testing.T) {
	mock, s := setupMockStore(t)

	mock.ExpectQuery(`SELECT`).WithArgs("nope").WillReturnError(pgx.ErrNoRows)

	k, err := s.GetAPIKeyByHash(context.Background(), "nope")

	assert.Nil(t, k)
	assert.ErrorIs(t, err, pgx.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListAPIKeys_OrdersNewestFirst(t *testing.T) {
	mock, s := setupMockStore(t)

	now := time.Now().UTC()
	rows := apiKeyRow().
		AddRow(uuid.New(), "newer", "", "h1", "logr_h1", false, true, false, false, nil, now, nil).
		AddRow(uuid.New(), "older", "", "h2", "logr_h2", false, true, false, false, nil, now.Add(-time.Hour), nil)

	mock.ExpectQuery(`SELECT`).WillReturnRows(rows)

	keys, err := s.ListAPIKeys(context.Background())

	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, "newer", keys[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRevokeAPIKey_AlreadyRevokedIsNotFound(t *testing.T) {
	mock, s := setupMockStore(t)

	id := uuid.New()
	mock.ExpectExec(`UPDATE api_keys SET revoked`).
		WithArgs(pgxmock.AnyArg(), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.RevokeAPIKey(context.Background(), id)

	assert.ErrorIs(t, err, pgx.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRevokeAPIKey_Success(t *testing.T) {
	mock, s := setupMockStore(t)

	id := uuid.New()
	mock.ExpectExec(`UPDATE api_keys SET revoked`).
		WithArgs(pgxmock.AnyArg(), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.RevokeAPIKey(context.Background(), id)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
