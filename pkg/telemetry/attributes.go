package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Standard attribute keys shared across spans.
const (
	AttrService    = "log.service"
	AttrLevel      = "log.level"
	AttrTraceID    = "log.trace_id"
	AttrEntryCount = "log.entry_count"

	AttrSearchMode       = "search.mode"
	AttrSearchCandidates = "search.candidates"
	AttrSearchSignals    = "search.signals"

	AttrPipelineBatchSize  = "pipeline.batch_size"
	AttrPipelineDailyCount = "pipeline.daily_count"
)

// IngestAttributes describes a single or batched ingest call.
func IngestAttributes(service, level string, entryCount int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrService, service),
		attribute.String(AttrLevel, level),
		attribute.Int(AttrEntryCount, entryCount),
	}
}

// SearchAttributes describes an ensemble search call.
func SearchAttributes(mode string, candidates int, signals []string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrSearchMode, mode),
		attribute.Int(AttrSearchCandidates, candidates),
		attribute.StringSlice(AttrSearchSignals, signals),
	}
}

// PipelineAttributes describes one embedding pipeline cycle.
func PipelineAttributes(batchSize, dailyCount int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrPipelineBatchSize, batchSize),
		attribute.Int(AttrPipelineDailyCount, dailyCount),
	}
}
