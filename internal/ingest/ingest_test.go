package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logsvc/internal/domain"
	"logsvc/internal/store"
	"logsvc/pkg/apperror"
	"logsvc/pkg/database"
)

// pgxMockAdapter narrows a pgxmock pool down to database.DB, letting
// ingest.Service run against a real *store.Store without a live
// database — the same adapter shape internal/store's own tests use.
type pgxMockAdapter struct {
	mock pgxmock.PgxPoolIface
}

func (a *pgxMockAdapter) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return a.mock.Exec(ctx, sql, args...)
}
func (a *pgxMockAdapter) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return a.mock.Query(ctx, sql, args...)
}
func (a *pgxMockAdapter) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return a.mock.QueryRow(ctx, sql, args...)
}
func (a *pgxMockAdapter) BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error) {
	return a.mock.BeginTx(ctx, txOptions)
}
func (a *pgxMockAdapter) Close()                         { a.mock.Close() }
func (a *pgxMockAdapter) Ping(ctx context.Context) error { return a.mock.Ping(ctx) }

var _ database.DB = (*pgxMockAdapter)(nil)

func setupMockService(t *testing.T) (pgxmock.PgxPoolIface, *Service) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, New(store.New(&pgxMockAdapter{mock: mock}))
}

func TestCreateEntry_WithoutEventsInsertsDirectly(t *testing.T) {
	mock, svc := setupMockService(t)

	mock.ExpectQuery(`INSERT INTO log_entries`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(uuid.New(), time.Now().UTC()))

	e := &domain.LogEntry{Service: "api", Level: "info", Message: "hello"}
	got, err := svc.CreateEntry(context.Background(), e)

	require.NoError(t, err)
	assert.Equal(t, "hello", got.Message)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateEntry_WithEventsInsertsInTransaction(t *testing.T) {
	mock, svc := setupMockService(t)

	mock.ExpectBeginTx(pgx.TxOptions{})
	mock.ExpectQuery(`INSERT INTO log_entries`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(uuid.New(), time.Now().UTC()))
	mock.ExpectQuery(`INSERT INTO log_events`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(uuid.New(), time.Now().UTC()))
	mock.ExpectCommit()

	e := &domain.LogEntry{
		Service: "api", Level: "info", Message: "hello",
		Events: []domain.LogEvent{{EventType: string(domain.EventPrompt), Content: "hi"}},
	}
	got, err := svc.CreateEntry(context.Background(), e)

	require.NoError(t, err)
	assert.Len(t, got.Events, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateEntry_InvalidEntryNeverTouchesStore(t *testing.T) {
	mock, svc := setupMockService(t)

	e := &domain.LogEntry{Level: "info", Message: "missing service"}
	_, err := svc.CreateEntry(context.Background(), e)

	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateEntriesBatch_CommitsAcceptedEntriesInOneTransaction(t *testing.T) {
	mock, svc := setupMockService(t)

	mock.ExpectBeginTx(pgx.TxOptions{})
	mock.ExpectQuery(`INSERT INTO log_entries`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(uuid.New(), time.Now().UTC()))
	mock.ExpectQuery(`INSERT INTO log_entries`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(uuid.New(), time.Now().UTC()))
	mock.ExpectCommit()

	entries := []*domain.LogEntry{
		{Service: "api", Level: "info", Message: "ok"},
		{Level: "info", Message: "missing service"},
		{Service: "api", Level: "info", Message: "also ok"},
	}
	result, err := svc.CreateEntriesBatch(context.Background(), entries)

	require.NoError(t, err)
	assert.Equal(t, 2, result.Accepted)
	assert.Equal(t, 1, result.Failed)
	assert.Len(t, result.Errors, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateEntriesBatch_DBErrorRollsBackWholeBatch(t *testing.T) {
	mock, svc := setupMockService(t)

	mock.ExpectBeginTx(pgx.TxOptions{})
	mock.ExpectQuery(`INSERT INTO log_entries`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(uuid.New(), time.Now().UTC()))
	mock.ExpectQuery(`INSERT INTO log_entries`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	entries := []*domain.LogEntry{
		{Service: "api", Level: "info", Message: "ok"},
		{Service: "api", Level: "info", Message: "will fail insert"},
	}
	_, err := svc.CreateEntriesBatch(context.Background(), entries)

	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSpansBatch_CommitsAcceptedSpansInOneTransaction(t *testing.T) {
	mock, svc := setupMockService(t)

	mock.ExpectBeginTx(pgx.TxOptions{})
	mock.ExpectQuery(`INSERT INTO spans`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(uuid.New(), time.Now().UTC()))
	mock.ExpectCommit()

	spans := []*domain.Span{
		{TraceID: "t", SpanID: "s1", Service: "api", Operation: "call", StartTime: time.Now()},
		{TraceID: "t", SpanID: "s2", Service: "api", Operation: "call"},
	}
	result, err := svc.CreateSpansBatch(context.Background(), spans)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Accepted)
	assert.Equal(t, 1, result.Failed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSpan_DuplicateSpanIDIsValidationError(t *testing.T) {
	mock, svc := setupMockService(t)

	mock.ExpectQuery(`INSERT INTO spans`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	sp := &domain.Span{TraceID: "t", SpanID: "s", Service: "api", Operation: "call", StartTime: time.Now()}
	_, err := svc.CreateSpan(context.Background(), sp)

	require.Error(t, err)
	assert.Equal(t, "span_id", apperror.AsError(err).Field)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSpan_Success(t *testing.T) {
	mock, svc := setupMockService(t)

	mock.ExpectQuery(`INSERT INTO spans`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(uuid.New(), time.Now().UTC()))

	sp := &domain.Span{TraceID: "t", SpanID: "s", Service: "api", Operation: "call", StartTime: time.Now()}
	got, err := svc.CreateSpan(context.Background(), sp)

	require.NoError(t, err)
	assert.Equal(t, string(domain.SpanKindInternal), got.Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}
