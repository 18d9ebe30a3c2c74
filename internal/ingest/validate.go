// Package ingest validates and normalizes log entries, events, and
// spans, then persists them atomically through internal/store.
package ingest

import (
	"fmt"
	"time"
	"unicode/utf8"

	"logsvc/internal/domain"
	"logsvc/pkg/apperror"
)

const (
	maxServiceLength     = 100
	maxMessageLength     = 100000
	maxContextBytes      = 1000000
	maxOpaqueIDLength    = 100
	maxEventContentChars = 10000000
	maxBatchSize         = 1000
	maxBatchErrors       = 10
)

// ValidateEntry checks a single LogEntry against the domain's size and
// taxonomy rules, normalizing Level in place. Returns an apperror on
// the first violation found.
func ValidateEntry(e *domain.LogEntry) error {
	if e.Service == "" {
		return apperror.NewShape("service is required").WithField("service")
	}
	if utf8.RuneCountInString(e.Service) > maxServiceLength {
		return apperror.NewValidationWithField(
			fmt.Sprintf("service must be at most %d characters", maxServiceLength), "service")
	}

	if e.Level == "" {
		return apperror.NewShape("level is required").WithField("level")
	}
	level, ok := domain.NormalizeLevel(e.Level)
	if !ok {
		return apperror.NewValidationWithField(fmt.Sprintf("invalid level %q", e.Level), "level")
	}
	e.Level = string(level)

	if e.Message == "" {
		return apperror.NewShape("message is required").WithField("message")
	}
	if utf8.RuneCountInString(e.Message) > maxMessageLength {
		return apperror.NewValidationWithField(
			fmt.Sprintf("message must be at most %d characters", maxMessageLength), "message")
	}

	if size, err := jsonSize(e.Context); err != nil {
		return apperror.NewValidationWithField("context is not serializable", "context")
	} else if size > maxContextBytes {
		return apperror.NewValidationWithField(
			fmt.Sprintf("context must serialize to at most %d bytes", maxContextBytes), "context")
	}

	for _, field := range []struct{ name, val string }{
		{"trace_id", e.TraceID}, {"span_id", e.SpanID}, {"parent_span_id", e.ParentSpanID},
	} {
		if utf8.RuneCountInString(field.val) > maxOpaqueIDLength {
			return apperror.NewValidationWithField(
				fmt.Sprintf("%s must be at most %d characters", field.name, maxOpaqueIDLength), field.name)
		}
	}

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	} else {
		e.Timestamp = e.Timestamp.UTC()
	}

	for i := range e.Events {
		if err := ValidateEvent(&e.Events[i]); err != nil {
			return err
		}
	}
	return nil
}

// ValidateEvent checks one child LogEvent.
func ValidateEvent(ev *domain.LogEvent) error {
	if ev.EventType == "" {
		return apperror.NewShape("event_type is required").WithField("event_type")
	}
	if !domain.ValidEventTypes(ev.EventType) {
		return apperror.NewValidationWithField(fmt.Sprintf("invalid event_type %q", ev.EventType), "event_type")
	}
	if utf8.RuneCountInString(ev.Content) > maxEventContentChars {
		return apperror.NewValidationWithField(
			fmt.Sprintf("event content must be at most %d characters", maxEventContentChars), "content")
	}
	return nil
}

// ValidateSpan checks one Span.
func ValidateSpan(sp *domain.Span) error {
	if sp.TraceID == "" {
		return apperror.NewShape("trace_id is required").WithField("trace_id")
	}
	if sp.SpanID == "" {
		return apperror.NewShape("span_id is required").WithField("span_id")
	}
	if sp.Service == "" {
		return apperror.NewShape("service is required").WithField("service")
	}
	if sp.Operation == "" {
		return apperror.NewShape("operation is required").WithField("operation")
	}
	if sp.Kind == "" {
		sp.Kind = string(domain.SpanKindInternal)
	}
	if !domain.ValidSpanKind(sp.Kind) {
		return apperror.NewValidationWithField(fmt.Sprintf("invalid kind %q", sp.Kind), "kind")
	}
	if sp.Status == "" {
		sp.Status = string(domain.SpanStatusUnset)
	}
	if !domain.ValidSpanStatus(sp.Status) {
		return apperror.NewValidationWithField(fmt.Sprintf("invalid status %q", sp.Status), "status")
	}
	if sp.StartTime.IsZero() {
		return apperror.NewShape("start_time is required").WithField("start_time")
	}
	sp.StartTime = sp.StartTime.UTC()
	if sp.EndTime != nil {
		end := sp.EndTime.UTC()
		sp.EndTime = &end
	}
	return nil
}
