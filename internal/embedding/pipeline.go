package embedding

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"logsvc/internal/domain"
	"logsvc/internal/store"
	"logsvc/pkg/metrics"
	"logsvc/pkg/telemetry"
)

const (
	batchSize        = 50
	minMessageLength = 20
	embedTimeout     = 60 * time.Second
)

// EmbedClient is the subset of *Client the pipeline depends on, narrowed
// so tests can substitute a fake.
type EmbedClient interface {
	Configured() bool
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// Store is the subset of *store.Store the pipeline depends on.
type Store interface {
	EligibleForEmbedding(ctx context.Context, excludedServices, excludedLevels []string, minMessageLength, limit int) ([]*domain.LogEntry, error)
	UpdateEmbeddingsBatch(ctx context.Context, writes []store.EmbeddingWrite, model string) error
}

// Status is the current operational snapshot of the pipeline, exposed
// through the admin/introspection surface.
type Status struct {
	Running       bool
	DailyCount    int
	DailyCap      int
	TotalEmbedded int
	TotalErrors   int
	LastRun       time.Time
	LastError     string
}

// Pipeline periodically embeds log entries that are eligible (no vector
// yet, long enough message, not from an excluded service/level) subject
// to a daily cap that resets at UTC midnight. Mirrors the polling/cancel
// lifecycle used elsewhere in the service for background work.
type Pipeline struct {
	store    Store
	client   EmbedClient
	model    string
	dailyCap int
	interval time.Duration

	mu            sync.Mutex
	dailyCount    int
	dailyDate     string
	totalEmbedded int
	totalErrors   int
	lastRun       time.Time
	lastError     string
	running       bool

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Pipeline. interval is the time between cycles; the
// default cadence is five minutes.
func New(st Store, client EmbedClient, model string, dailyCap int, interval time.Duration) *Pipeline {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Pipeline{
		store:    st,
		client:   client,
		model:    model,
		dailyCap: dailyCap,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins the background polling loop. A no-op (and permanently
// disabled) if the embedding client has no credentials configured.
func (p *Pipeline) Start() {
	if !p.client.Configured() {
		slog.Warn("embedding pipeline disabled: no provider credentials configured")
		close(p.done)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.mu.Lock()
	p.running = true
	p.mu.Unlock()

	slog.Info("starting embedding pipeline", "interval", p.interval, "daily_cap", p.dailyCap)
	go p.loop(ctx)
}

// Stop cancels the loop and waits for the in-flight cycle to finish.
func (p *Pipeline) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
}

func (p *Pipeline) loop(ctx context.Context) {
	defer close(p.done)

	p.runCycle(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runCycle(ctx)
		}
	}
}

// resetIfNewDay zeroes the daily counter when the UTC calendar date has
// rolled over since the last cycle.
func (p *Pipeline) resetIfNewDay(now time.Time) {
	today := now.Format("2006-01-02")
	if p.dailyDate != today {
		p.dailyDate = today
		p.dailyCount = 0
	}
}

// runCycle implements one embedding pass: reset the daily counter if
// needed, stop early if the cap is already spent, pull up to
// min(batchSize, remaining cap) eligible entries, embed them in one
// provider call, and commit every vector in a single transaction.
func (p *Pipeline) runCycle(ctx context.Context) {
	ctx, span := telemetry.StartSpan(ctx, "embedding.cycle")
	defer span.End()

	now := time.Now().UTC()

	p.mu.Lock()
	p.resetIfNewDay(now)
	p.lastRun = now
	remaining := p.dailyCap - p.dailyCount
	p.mu.Unlock()

	if remaining <= 0 {
		metrics.Get().RecordEmbeddingCycle(0, 1, p.dailyCap)
		return
	}

	limit := batchSize
	if remaining < limit {
		limit = remaining
	}

	excludedServices := make([]string, 0, len(domain.ExcludedEmbeddingServices))
	for svc := range domain.ExcludedEmbeddingServices {
		excludedServices = append(excludedServices, svc)
	}
	excludedLevels := []string{string(domain.LevelDebug)}

	entries, err := p.store.EligibleForEmbedding(ctx, excludedServices, excludedLevels, minMessageLength, limit)
	if err != nil {
		p.recordError(err)
		return
	}
	if len(entries) == 0 {
		return
	}

	inputs := make([]string, len(entries))
	for i, e := range entries {
		inputs[i] = e.Message
	}

	embedCtx, cancel := context.WithTimeout(ctx, embedTimeout)
	vectors, err := p.client.Embed(embedCtx, inputs)
	cancel()
	if err != nil {
		p.recordError(err)
		return
	}

	writes := make([]store.EmbeddingWrite, len(entries))
	for i, e := range entries {
		writes[i] = store.EmbeddingWrite{ID: e.ID, Embedding: vectors[i]}
	}

	if err := p.store.UpdateEmbeddingsBatch(ctx, writes, p.model); err != nil {
		p.recordError(err)
		return
	}

	p.mu.Lock()
	p.dailyCount += len(entries)
	p.totalEmbedded += len(entries)
	p.lastError = ""
	dailyCount := p.dailyCount
	p.mu.Unlock()

	telemetry.SetAttributes(ctx, telemetry.PipelineAttributes(len(entries), dailyCount)...)
	metrics.Get().RecordEmbeddingCycle(len(entries), 0, dailyCount)
	slog.Info("embedding cycle complete", "embedded", len(entries), "daily_count", dailyCount)
}

func (p *Pipeline) recordError(err error) {
	p.mu.Lock()
	p.totalErrors++
	p.lastError = err.Error()
	p.mu.Unlock()
	slog.Error("embedding cycle failed", "error", err)
}

// Status returns a point-in-time snapshot of the pipeline's counters.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{
		Running:       p.running,
		DailyCount:    p.dailyCount,
		DailyCap:      p.dailyCap,
		TotalEmbedded: p.totalEmbedded,
		TotalErrors:   p.totalErrors,
		LastRun:       p.lastRun,
		LastError:     p.lastError,
	}
}
