// Package domain holds the dependency-free record types shared by every
// other package: log entries and their child events, spans, API keys,
// and the handful of derived/aggregate shapes returned by queries.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// LogEntry is the primary ingested record.
type LogEntry struct {
	ID uuid.UUID

	Service     string
	Environment string
	Host        string
	Version     string

	Level   string
	Message string
	Context map[string]any

	TraceID      string
	SpanID       string
	ParentSpanID string

	RequestID string
	UserID    string
	SessionID string

	Timestamp time.Time
	CreatedAt time.Time
	DurationMs *int

	Model     string
	TokensIn  *int
	TokensOut *int
	CostUSD   *float64

	ErrorType    string
	ErrorMessage string
	StackTrace   string

	Embedding      *pgvector.Vector
	EmbeddingModel string

	Events []LogEvent
}

// HasError reports whether the entry carries error information, the
// predicate backing the `has_error` query filter.
func (e *LogEntry) HasError() bool {
	return e.ErrorType != ""
}

// EventType is the closed set of LogEvent payload kinds.
type EventType string

const (
	EventPrompt       EventType = "prompt"
	EventCompletion   EventType = "completion"
	EventToolCall     EventType = "tool_call"
	EventToolResult   EventType = "tool_result"
	EventRetrieval    EventType = "retrieval"
	EventContext      EventType = "context"
	EventSystemPrompt EventType = "system_prompt"
)

// ValidEventTypes reports whether t is one of the recognized event types.
func ValidEventTypes(t string) bool {
	switch EventType(t) {
	case EventPrompt, EventCompletion, EventToolCall, EventToolResult, EventRetrieval, EventContext, EventSystemPrompt:
		return true
	default:
		return false
	}
}

// LogEvent is a child payload owned by exactly one LogEntry.
type LogEvent struct {
	ID         uuid.UUID
	LogEntryID uuid.UUID

	EventType   string
	Content     string
	ContentType string
	Metadata    map[string]any
	Sequence    int
	DurationMs  *int

	CreatedAt time.Time
}

// SpanKind is the closed set of tracing span kinds.
type SpanKind string

const (
	SpanKindClient   SpanKind = "client"
	SpanKindServer   SpanKind = "server"
	SpanKindProducer SpanKind = "producer"
	SpanKindConsumer SpanKind = "consumer"
	SpanKindInternal SpanKind = "internal"
)

func ValidSpanKind(k string) bool {
	switch SpanKind(k) {
	case SpanKindClient, SpanKindServer, SpanKindProducer, SpanKindConsumer, SpanKindInternal:
		return true
	default:
		return false
	}
}

// SpanStatus is the closed set of span outcome statuses.
type SpanStatus string

const (
	SpanStatusOK    SpanStatus = "ok"
	SpanStatusError SpanStatus = "error"
	SpanStatusUnset SpanStatus = "unset"
)

func ValidSpanStatus(s string) bool {
	switch SpanStatus(s) {
	case SpanStatusOK, SpanStatusError, SpanStatusUnset:
		return true
	default:
		return false
	}
}

// Span is a single timed unit of work inside a distributed trace.
type Span struct {
	ID uuid.UUID

	TraceID      string
	SpanID       string
	ParentSpanID string

	Service   string
	Operation string
	Kind      string

	StartTime  time.Time
	EndTime    *time.Time
	DurationMs *int

	Status        string
	StatusMessage string
	Attributes    map[string]any
	Resource      map[string]any

	CreatedAt time.Time
}

// SpanNode is a Span plus its reconstructed children, used by trace-tree
// reconstruction.
type SpanNode struct {
	Span     *Span
	Children []*SpanNode
}

// APIKey is a bearer credential with independent read/write/admin scopes.
// The plaintext key is never stored — only its SHA-256 hash and a display
// prefix.
type APIKey struct {
	ID          uuid.UUID
	Name        string
	Description string

	KeyHash   string
	KeyPrefix string

	CanWrite bool
	CanRead  bool
	CanAdmin bool

	Revoked   bool
	RevokedAt *time.Time

	CreatedAt  time.Time
	LastUsedAt *time.Time
}

// ServiceAccount groups API keys for admin display. No behavior depends
// on it beyond referential existence.
type ServiceAccount struct {
	ID          uuid.UUID
	Name        string
	Description string
	CreatedAt   time.Time
}

// RetentionPolicy is a per-service override of the global retention
// window. Stored but not consulted by the cleanup job — see DESIGN.md.
type RetentionPolicy struct {
	ID            uuid.UUID
	Service       string
	RetentionDays int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
