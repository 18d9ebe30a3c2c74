package httpapi

import (
	"time"

	"github.com/google/uuid"

	"logsvc/internal/domain"
)

// logEventDTO is the wire shape of domain.LogEvent.
type logEventDTO struct {
	ID          uuid.UUID      `json:"id,omitempty"`
	EventType   string         `json:"event_type"`
	Content     string         `json:"content"`
	ContentType string         `json:"content_type,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Sequence    int            `json:"sequence"`
	DurationMs  *int           `json:"duration_ms,omitempty"`
	CreatedAt   time.Time      `json:"created_at,omitempty"`
}

func eventFromDomain(e domain.LogEvent) logEventDTO {
	return logEventDTO{
		ID:          e.ID,
		EventType:   e.EventType,
		Content:     e.Content,
		ContentType: e.ContentType,
		Metadata:    e.Metadata,
		Sequence:    e.Sequence,
		DurationMs:  e.DurationMs,
		CreatedAt:   e.CreatedAt,
	}
}

func eventToDomain(d logEventDTO) domain.LogEvent {
	return domain.LogEvent{
		EventType:   d.EventType,
		Content:     d.Content,
		ContentType: d.ContentType,
		Metadata:    d.Metadata,
		Sequence:    d.Sequence,
		DurationMs:  d.DurationMs,
	}
}

// logEntryDTO is the wire shape of domain.LogEntry, both as an ingest
// request body and as the response returned from every read path.
type logEntryDTO struct {
	ID uuid.UUID `json:"id,omitempty"`

	Service     string `json:"service"`
	Environment string `json:"environment,omitempty"`
	Host        string `json:"host,omitempty"`
	Version     string `json:"version,omitempty"`

	Level   string         `json:"level"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`

	TraceID      string `json:"trace_id,omitempty"`
	SpanID       string `json:"span_id,omitempty"`
	ParentSpanID string `json:"parent_span_id,omitempty"`

	RequestID string `json:"request_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`

	Timestamp  time.Time `json:"timestamp,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
	DurationMs *int      `json:"duration_ms,omitempty"`

	Model     string   `json:"model,omitempty"`
	TokensIn  *int     `json:"tokens_in,omitempty"`
	TokensOut *int     `json:"tokens_out,omitempty"`
	CostUSD   *float64 `json:"cost_usd,omitempty"`

	ErrorType    string `json:"error_type,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	StackTrace   string `json:"stack_trace,omitempty"`

	EmbeddingModel string `json:"embedding_model,omitempty"`
	HasEmbedding   bool   `json:"has_embedding"`

	Events []logEventDTO `json:"events,omitempty"`
}

func entryFromDomain(e *domain.LogEntry) logEntryDTO {
	events := make([]logEventDTO, len(e.Events))
	for i, ev := range e.Events {
		events[i] = eventFromDomain(ev)
	}
	return logEntryDTO{
		ID:             e.ID,
		Service:        e.Service,
		Environment:    e.Environment,
		Host:           e.Host,
		Version:        e.Version,
		Level:          e.Level,
		Message:        e.Message,
		Context:        e.Context,
		TraceID:        e.TraceID,
		SpanID:         e.SpanID,
		ParentSpanID:   e.ParentSpanID,
		RequestID:      e.RequestID,
		UserID:         e.UserID,
		SessionID:      e.SessionID,
		Timestamp:      e.Timestamp,
		CreatedAt:      e.CreatedAt,
		DurationMs:     e.DurationMs,
		Model:          e.Model,
		TokensIn:       e.TokensIn,
		TokensOut:      e.TokensOut,
		CostUSD:        e.CostUSD,
		ErrorType:      e.ErrorType,
		ErrorMessage:   e.ErrorMessage,
		StackTrace:     e.StackTrace,
		EmbeddingModel: e.EmbeddingModel,
		HasEmbedding:   e.Embedding != nil,
		Events:         events,
	}
}

func entryToDomain(d logEntryDTO) *domain.LogEntry {
	events := make([]domain.LogEvent, len(d.Events))
	for i, ev := range d.Events {
		events[i] = eventToDomain(ev)
	}
	return &domain.LogEntry{
		Service:      d.Service,
		Environment:  d.Environment,
		Host:         d.Host,
		Version:      d.Version,
		Level:        d.Level,
		Message:      d.Message,
		Context:      d.Context,
		TraceID:      d.TraceID,
		SpanID:       d.SpanID,
		ParentSpanID: d.ParentSpanID,
		RequestID:    d.RequestID,
		UserID:       d.UserID,
		SessionID:    d.SessionID,
		Timestamp:    d.Timestamp,
		DurationMs:   d.DurationMs,
		Model:        d.Model,
		TokensIn:     d.TokensIn,
		TokensOut:    d.TokensOut,
		CostUSD:      d.CostUSD,
		ErrorType:    d.ErrorType,
		ErrorMessage: d.ErrorMessage,
		StackTrace:   d.StackTrace,
		Events:       events,
	}
}

// spanDTO is the wire shape of domain.Span.
type spanDTO struct {
	ID uuid.UUID `json:"id,omitempty"`

	TraceID      string `json:"trace_id"`
	SpanID       string `json:"span_id"`
	ParentSpanID string `json:"parent_span_id,omitempty"`

	Service   string `json:"service"`
	Operation string `json:"operation"`
	Kind      string `json:"kind,omitempty"`

	StartTime  time.Time  `json:"start_time"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	DurationMs *int       `json:"duration_ms,omitempty"`

	Status        string         `json:"status,omitempty"`
	StatusMessage string         `json:"status_message,omitempty"`
	Attributes    map[string]any `json:"attributes,omitempty"`
	Resource      map[string]any `json:"resource,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
}

func spanFromDomain(s *domain.Span) spanDTO {
	return spanDTO{
		ID:            s.ID,
		TraceID:       s.TraceID,
		SpanID:        s.SpanID,
		ParentSpanID:  s.ParentSpanID,
		Service:       s.Service,
		Operation:     s.Operation,
		Kind:          s.Kind,
		StartTime:     s.StartTime,
		EndTime:       s.EndTime,
		DurationMs:    s.DurationMs,
		Status:        s.Status,
		StatusMessage: s.StatusMessage,
		Attributes:    s.Attributes,
		Resource:      s.Resource,
		CreatedAt:     s.CreatedAt,
	}
}

func spanToDomain(d spanDTO) *domain.Span {
	return &domain.Span{
		TraceID:       d.TraceID,
		SpanID:        d.SpanID,
		ParentSpanID:  d.ParentSpanID,
		Service:       d.Service,
		Operation:     d.Operation,
		Kind:          d.Kind,
		StartTime:     d.StartTime,
		EndTime:       d.EndTime,
		DurationMs:    d.DurationMs,
		Status:        d.Status,
		StatusMessage: d.StatusMessage,
		Attributes:    d.Attributes,
		Resource:      d.Resource,
	}
}

// spanNodeDTO is the tree-reconstruction response shape.
type spanNodeDTO struct {
	Span     spanDTO       `json:"span"`
	Children []spanNodeDTO `json:"children,omitempty"`
}

func spanNodeFromDomain(n *domain.SpanNode) spanNodeDTO {
	children := make([]spanNodeDTO, len(n.Children))
	for i, c := range n.Children {
		children[i] = spanNodeFromDomain(c)
	}
	return spanNodeDTO{Span: spanFromDomain(n.Span), Children: children}
}
