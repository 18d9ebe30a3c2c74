// Package retention runs the background cleanup loop that deletes log
// entries older than the configured retention window, batch by batch.
// Mirrors the embedding pipeline's ticker/cancel/done lifecycle — the
// cooperative background-task idiom used everywhere else in this
// service for long-running, non-request work.
package retention

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"logsvc/internal/domain"
	"logsvc/pkg/apperror"
)

const deleteBatchSize = 500

// Store is the subset of *store.Store the retention loop depends on.
type Store interface {
	DeleteOldLogEntries(ctx context.Context, cutoff time.Time, batchSize int) (int, error)
	ListRetentionPolicies(ctx context.Context) ([]*domain.RetentionPolicy, error)
	UpsertRetentionPolicy(ctx context.Context, service string, days int) (*domain.RetentionPolicy, error)
	DeleteRetentionPolicy(ctx context.Context, service string) error
}

// Scheduler periodically deletes log entries older than retentionDays.
// See DESIGN.md: the per-service RetentionPolicy table exists but is
// not consulted here — cleanup honors only the global window.
type Scheduler struct {
	store         Store
	retentionDays int
	interval      time.Duration

	mu            sync.Mutex
	lastRun       time.Time
	lastDeleted   int
	totalDeleted  int

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Scheduler. interval is the time between cleanup passes.
func New(st Store, retentionDays int, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		store:         st,
		retentionDays: retentionDays,
		interval:      interval,
		done:          make(chan struct{}),
	}
}

// Start begins the background cleanup loop. A no-op if retentionDays is
// not positive — there's nothing to enforce.
func (s *Scheduler) Start() {
	if s.retentionDays <= 0 {
		slog.Warn("retention cleanup disabled: no positive retention window configured")
		close(s.done)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	slog.Info("starting retention cleanup loop", "interval", s.interval, "retention_days", s.retentionDays)
	go s.loop(ctx)
}

// Stop cancels the loop and waits for the in-flight pass to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	s.runPass(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runPass(ctx)
		}
	}
}

func (s *Scheduler) runPass(ctx context.Context) {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays)
	deleted, err := s.store.DeleteOldLogEntries(ctx, cutoff, deleteBatchSize)

	s.mu.Lock()
	s.lastRun = time.Now().UTC()
	if err == nil {
		s.lastDeleted = deleted
		s.totalDeleted += deleted
	}
	s.mu.Unlock()

	if err != nil {
		slog.Error("retention cleanup pass failed", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("retention cleanup pass complete", "deleted", deleted, "cutoff", cutoff)
	}
}

// Policies returns every stored per-service retention override. The
// cleanup loop itself does not consult these — the admin surface just
// stores and displays them.
func (s *Scheduler) Policies(ctx context.Context) ([]*domain.RetentionPolicy, error) {
	policies, err := s.store.ListRetentionPolicies(ctx)
	if err != nil {
		return nil, apperror.Wrap(err, "failed to list retention policies")
	}
	return policies, nil
}

// SetPolicy creates or updates the override for one service.
func (s *Scheduler) SetPolicy(ctx context.Context, service string, days int) (*domain.RetentionPolicy, error) {
	if service == "" {
		return nil, apperror.NewShape("service is required").WithField("service")
	}
	if days <= 0 {
		return nil, apperror.NewValidationWithField("retention_days must be positive", "retention_days")
	}
	p, err := s.store.UpsertRetentionPolicy(ctx, service, days)
	if err != nil {
		return nil, apperror.Wrap(err, "failed to store retention policy")
	}
	return p, nil
}

// RemovePolicy deletes a service's override.
func (s *Scheduler) RemovePolicy(ctx context.Context, service string) error {
	if err := s.store.DeleteRetentionPolicy(ctx, service); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperror.NewNotFound("retention policy not found")
		}
		return apperror.Wrap(err, "failed to delete retention policy")
	}
	return nil
}

// Status is a point-in-time snapshot of the cleanup loop's counters.
type Status struct {
	LastRun      time.Time
	LastDeleted  int
	TotalDeleted int
}

func (s *Scheduler) StatusSnapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{LastRun: s.lastRun, LastDeleted: s.lastDeleted, TotalDeleted: s.totalDeleted}
}
