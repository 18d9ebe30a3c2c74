package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeleteOldLogEntries_StopsOnceBatchIsPartial(t *testing.T) {
	mock, s := setupMockStore(t)

	cutoff := time.Now().UTC().AddDate(0, 0, -30)

	mock.ExpectExec(`DELETE FROM log_entries`).
		WithArgs(cutoff, 100).
		WillReturnResult(pgxmock.NewResult("DELETE", 100))
	mock.ExpectExec(`DELETE FROM log_entries`).
		WithArgs(cutoff, 100).
		WillReturnResult(pgxmock.NewResult("DELETE", 37))

	total, err := s.DeleteOldLogEntries(context.Background(), cutoff, 100)

	require.NoError(t, err)
	assert.Equal(t, 137, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteOldLogEntries_PropagatesExecError(t *testing.T) {
	mock, s := setupMockStore(t)

	cutoff := time.Now().UTC()
	mock.ExpectExec(`DELETE FROM log_entries`).
		WithArgs(cutoff, 50).
		WillReturnError(errors.New("relation \"log_entries\" does not exist"))

	total, err := s.DeleteOldLogEntries(context.Background(), cutoff, 50)

	assert.Error(t, err)
	assert.Equal(t, 0, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertRetentionPolicy_ReturnsWrittenRow(t *testing.T) {
	mock, s := setupMockStore(t)

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{"id", "service", "retention_days", "created_at", "updated_at"}).
		AddRow(uuid.New(), "api", 30, now, now)

	mock.ExpectQuery(`INSERT INTO retention_policies`).
		WithArgs("api", 30).
		WillReturnRows(rows)

	p, err := s.UpsertRetentionPolicy(context.Background(), "api", 30)

	require.NoError(t, err)
	assert.Equal(t, "api", p.Service)
	assert.Equal(t, 30, p.RetentionDays)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteRetentionPolicy_NoRowsIsNotFound(t *testing.T) {
	mock, s := setupMockStore(t)

	mock.ExpectExec(`DELETE FROM retention_policies`).
		WithArgs("api").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := s.DeleteRetentionPolicy(context.Background(), "api")

	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
