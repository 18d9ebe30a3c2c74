package ingest

import (
	"context"
	"fmt"

	"logsvc/internal/domain"
	"logsvc/internal/store"
	"logsvc/pkg/apperror"
	"logsvc/pkg/telemetry"
)

// Service validates and persists log entries and spans.
type Service struct {
	store *store.Store
}

func New(st *store.Store) *Service {
	return &Service{store: st}
}

// CreateEntry validates and inserts one entry with its events,
// atomically. Nothing is persisted if validation fails.
func (s *Service) CreateEntry(ctx context.Context, e *domain.LogEntry) (*domain.LogEntry, error) {
	if err := ValidateEntry(e); err != nil {
		return nil, err
	}
	telemetry.SetAttributes(ctx, telemetry.IngestAttributes(e.Service, e.Level, 1)...)
	if len(e.Events) == 0 {
		if err := s.store.InsertLogEntry(ctx, e); err != nil {
			return nil, apperror.Wrap(err, "failed to persist log entry")
		}
		return e, nil
	}
	if err := s.store.InsertLogEntryWithEvents(ctx, e); err != nil {
		return nil, apperror.Wrap(err, "failed to persist log entry with events")
	}
	return e, nil
}

// BatchResult is the batch ingest outcome; per-item failures are
// counted and sampled rather than aborting the batch.
type BatchResult struct {
	Accepted int
	Failed   int
	Errors   []string
}

// CreateEntriesBatch validates each entry independently; invalid items
// are counted and reported (up to maxBatchErrors messages) without
// aborting the rest. The entries that pass validation then commit in a
// single transaction, so a database failure mid-batch leaves nothing
// partially written.
func (s *Service) CreateEntriesBatch(ctx context.Context, entries []*domain.LogEntry) (*BatchResult, error) {
	if len(entries) == 0 {
		return nil, apperror.NewShape("entries must not be empty").WithField("entries")
	}
	if len(entries) > maxBatchSize {
		return nil, apperror.NewValidationWithField(
			fmt.Sprintf("batch must contain at most %d entries", maxBatchSize), "entries")
	}

	result := &BatchResult{}
	var valid []*domain.LogEntry
	for _, e := range entries {
		if err := ValidateEntry(e); err != nil {
			result.Failed++
			if len(result.Errors) < maxBatchErrors {
				result.Errors = append(result.Errors, err.Error())
			}
			continue
		}
		valid = append(valid, e)
	}

	if len(valid) > 0 {
		if err := s.store.InsertLogEntriesBatch(ctx, valid); err != nil {
			return nil, apperror.Wrap(err, "failed to persist log entries")
		}
		result.Accepted = len(valid)
	}
	return result, nil
}

// CreateSpan validates and inserts one span.
func (s *Service) CreateSpan(ctx context.Context, sp *domain.Span) (*domain.Span, error) {
	if err := ValidateSpan(sp); err != nil {
		return nil, err
	}
	if err := s.store.InsertSpan(ctx, sp); err != nil {
		if store.IsDuplicateSpan(err) {
			return nil, apperror.NewValidationWithField("span_id already exists for this trace_id", "span_id")
		}
		return nil, apperror.Wrap(err, "failed to persist span")
	}
	return sp, nil
}

// CreateSpansBatch is CreateEntriesBatch's analogue for spans: per-item
// validation, then one transaction for everything that passed.
func (s *Service) CreateSpansBatch(ctx context.Context, spans []*domain.Span) (*BatchResult, error) {
	if len(spans) == 0 {
		return nil, apperror.NewShape("spans must not be empty").WithField("spans")
	}
	if len(spans) > maxBatchSize {
		return nil, apperror.NewValidationWithField(
			fmt.Sprintf("batch must contain at most %d spans", maxBatchSize), "spans")
	}

	result := &BatchResult{}
	var valid []*domain.Span
	for _, sp := range spans {
		if err := ValidateSpan(sp); err != nil {
			result.Failed++
			if len(result.Errors) < maxBatchErrors {
				result.Errors = append(result.Errors, err.Error())
			}
			continue
		}
		valid = append(valid, sp)
	}

	if len(valid) > 0 {
		if err := s.store.InsertSpansBatch(ctx, valid); err != nil {
			if store.IsDuplicateSpan(err) {
				return nil, apperror.NewValidationWithField("span_id already exists for this trace_id", "span_id")
			}
			return nil, apperror.Wrap(err, "failed to persist spans")
		}
		result.Accepted = len(valid)
	}
	return result, nil
}
