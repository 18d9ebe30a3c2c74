// Package store is the Postgres repository for log entries, their child
// events, spans, and API keys. Every method wraps its query in a trace
// span and hands the caller a domain type.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"logsvc/pkg/database"
	"logsvc/pkg/telemetry"
)

// Store is the Postgres-backed repository for the logging domain.
type Store struct {
	db database.DB
}

// New returns a Store backed by db.
func New(db database.DB) *Store {
	return &Store{db: db}
}

func marshalJSON(v map[string]any) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}

func unmarshalJSON(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("unmarshal jsonb: %w", err)
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// withSpan is a thin wrapper so every repository method gets the same
// tracing treatment without repeating the boilerplate.
func withSpan(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := telemetry.StartSpan(ctx, name)
	defer span.End()
	if err := fn(ctx); err != nil {
		telemetry.SetError(ctx, err)
		return err
	}
	return nil
}

// errNoRows reports whether err is the "no matching row" sentinel from
// pgx, used by callers to turn a scan miss into a domain NotFound error.
func errNoRows(err error) bool {
	return err == pgx.ErrNoRows
}
