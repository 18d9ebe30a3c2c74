package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logsvc/internal/domain"
	"logsvc/internal/store"
	"logsvc/pkg/apperror"
)

type fakeStore struct {
	bm25        []store.ScoredEntry
	vector      []store.ScoredEntry
	text        []store.ScoredEntry
	bm25Err     error
	vectorErr   error
	textErr     error
	entries     map[uuid.UUID]*domain.LogEntry
	errorGroups []store.ErrorGroupRow
}

func (f *fakeStore) SearchBM25(ctx context.Context, query string, filt store.ListLogsFilter, limit int) ([]store.ScoredEntry, error) {
	return f.bm25, f.bm25Err
}
func (f *fakeStore) SearchVector(ctx context.Context, embedding []float32, filt store.ListLogsFilter, limit int) ([]store.ScoredEntry, error) {
	return f.vector, f.vectorErr
}
func (f *fakeStore) SearchTextFallback(ctx context.Context, query string, filt store.ListLogsFilter, limit int) ([]store.ScoredEntry, error) {
	return f.text, f.textErr
}
func (f *fakeStore) GetLogEntry(ctx context.Context, id uuid.UUID) (*domain.LogEntry, error) {
	e, ok := f.entries[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return e, nil
}
func (f *fakeStore) GroupErrors(ctx context.Context, service string, hours, limit int) ([]store.ErrorGroupRow, error) {
	return f.errorGroups, nil
}

type fakeEmbedClient struct {
	configured bool
	err        error
	vector     []float32
}

func (c *fakeEmbedClient) Configured() bool { return c.configured }
func (c *fakeEmbedClient) EmbedOne(ctx context.Context, input string) ([]float32, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.vector, nil
}

func entry(id uuid.UUID, level string, age time.Duration) *domain.LogEntry {
	return &domain.LogEntry{ID: id, Level: level, Timestamp: time.Now().UTC().Add(-age), Message: "something went wrong here"}
}

func TestSearch_RejectsInvalidMode(t *testing.T) {
	eng := New(&fakeStore{}, &fakeEmbedClient{})
	_, err := eng.Search(context.Background(), Query{Text: "x", Mode: "bogus"})
	require.Error(t, err)
	assert.Equal(t, apperror.CodeValidation, apperror.Code(err))
}

func TestSearch_BM25Only(t *testing.T) {
	id := uuid.New()
	fs := &fakeStore{bm25: []store.ScoredEntry{{Entry: entry(id, "error", time.Hour), Score: 0.9}}}
	eng := New(fs, &fakeEmbedClient{})

	resp, err := eng.Search(context.Background(), Query{Text: "oops", Mode: ModeBM25, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, ModeBM25, resp.ModeUsed)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, id, resp.Results[0].Entry.ID)
}

func TestSearch_VectorDegradesToEnsembleWithoutEmbedding(t *testing.T) {
	id := uuid.New()
	fs := &fakeStore{bm25: []store.ScoredEntry{{Entry: entry(id, "warn", time.Hour), Score: 0.5}}}
	eng := New(fs, &fakeEmbedClient{configured: false})

	resp, err := eng.Search(context.Background(), Query{Text: "oops", Mode: ModeVector, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, ModeEnsemble, resp.ModeUsed)
}

func TestSearch_EnsembleDegradesToTextWithNoSignals(t *testing.T) {
	fs := &fakeStore{text: []store.ScoredEntry{{Entry: entry(uuid.New(), "info", time.Hour), Score: 1.0}}}
	eng := New(fs, &fakeEmbedClient{configured: false})

	resp, err := eng.Search(context.Background(), Query{Text: "oops", Mode: ModeEnsemble, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, ModeText, resp.ModeUsed)
	require.Len(t, resp.Results, 1)
}

func TestSearch_EnsembleFusesBM25AndVector(t *testing.T) {
	idA := uuid.New()
	idB := uuid.New()
	fs := &fakeStore{
		bm25:   []store.ScoredEntry{{Entry: entry(idA, "error", time.Hour), Score: 0.9}, {Entry: entry(idB, "info", 48 * time.Hour), Score: 0.5}},
		vector: []store.ScoredEntry{{Entry: entry(idA, "error", time.Hour), Score: 0.8}},
	}
	eng := New(fs, &fakeEmbedClient{configured: true, vector: []float32{0.1, 0.2}})

	resp, err := eng.Search(context.Background(), Query{Text: "oops", Mode: ModeEnsemble, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, ModeEnsemble, resp.ModeUsed)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, idA, resp.Results[0].Entry.ID, "appears in bm25+vector+heuristic so should rank first")
	for _, r := range resp.Results {
		if r.Entry.ID == idA {
			assert.GreaterOrEqual(t, len(r.Signals), 2)
		}
	}
}

func TestSearch_BM25ErrorDegradesEnsembleToText(t *testing.T) {
	fs := &fakeStore{
		bm25Err: errors.New("db down"),
		text:    []store.ScoredEntry{{Entry: entry(uuid.New(), "info", time.Hour), Score: 1.0}},
	}
	eng := New(fs, &fakeEmbedClient{configured: false})

	resp, err := eng.Search(context.Background(), Query{Text: "oops", Mode: ModeEnsemble, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, ModeText, resp.ModeUsed)
}

func TestSimilarLogs_TextFallbackExcludesReferenceEntry(t *testing.T) {
	refID := uuid.New()
	otherID := uuid.New()
	ref := entry(refID, "error", time.Hour)
	ref.Embedding = nil
	fs := &fakeStore{
		entries: map[uuid.UUID]*domain.LogEntry{refID: ref},
		text:    []store.ScoredEntry{{Entry: entry(otherID, "error", time.Hour), Score: 0.5}, {Entry: ref, Score: 1.0}},
	}
	eng := New(fs, &fakeEmbedClient{})

	results, err := eng.SimilarLogs(context.Background(), refID, false, 5)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, refID, r.Entry.ID, "reference entry must be excluded from its own similar set")
	}
}

func TestSimilarLogs_ExcludesSameTraceWhenRequested(t *testing.T) {
	refID := uuid.New()
	sameTraceID := uuid.New()
	otherID := uuid.New()

	ref := entry(refID, "error", time.Hour)
	ref.TraceID = "trace-1"
	sameTrace := entry(sameTraceID, "error", time.Hour)
	sameTrace.TraceID = "trace-1"
	other := entry(otherID, "error", time.Hour)
	other.TraceID = "trace-2"

	fs := &fakeStore{
		entries: map[uuid.UUID]*domain.LogEntry{refID: ref},
		text:    []store.ScoredEntry{{Entry: sameTrace, Score: 0.9}, {Entry: other, Score: 0.5}},
	}
	eng := New(fs, &fakeEmbedClient{})

	results, err := eng.SimilarLogs(context.Background(), refID, true, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, otherID, results[0].Entry.ID)
}

func TestGroupedErrors_PreservesStoreOrderAndPrefixes(t *testing.T) {
	fs := &fakeStore{errorGroups: []store.ErrorGroupRow{
		{ErrorType: "ValueError", MessagePrefix: "bad value in request", Count: 10},
		{ErrorType: "TimeoutError", MessagePrefix: "upstream timed out", Count: 2},
	}}
	eng := New(fs, &fakeEmbedClient{})

	groups, err := eng.GroupedErrors(context.Background(), "api", 24)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "ValueError", groups[0].ErrorType)
	assert.Equal(t, "bad value in request", groups[0].MessagePrefix)
	assert.Equal(t, 10, groups[0].Count)
}

func TestSimilarLogs_UnknownReferenceIsNotFound(t *testing.T) {
	eng := New(&fakeStore{}, &fakeEmbedClient{})
	_, err := eng.SimilarLogs(context.Background(), uuid.New(), false, 5)
	require.Error(t, err)
	assert.Equal(t, apperror.CodeNotFound, apperror.Code(err))
}
