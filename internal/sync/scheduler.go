package sync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jpillora/backoff"
)

var errNoStore = errors.New("no CMDB store configured")

// Store is the part of the CMDB the scheduler drives
type Store interface {
	IsReady() bool
	IsRefreshRequired() bool
	Build(ctx context.Context) error
	Refresh(ctx context.Context) error
}

// Scheduler is the single writer of CMDB state. It performs the first build,
// refreshes a snapshot built from a restored cache, then refreshes on a fixed
// interval and whenever triggered.
type Scheduler struct {
	store         Store
	interval      time.Duration
	retryInterval time.Duration
	debounce      time.Duration
	logger        *slog.Logger

	triggerChan chan struct{}
	mu          sync.Mutex
	lastRefresh time.Time
	lastStart   time.Time
	triggeredAt time.Time
	refreshing  bool
}

// Config holds scheduler configuration
type Config struct {
	Store Store
	// Interval between unconditional refreshes
	Interval time.Duration
	// RetryInterval is the first wait after a failed initial build
	RetryInterval time.Duration
	// Debounce is the minimum gap between the start of one refresh and a
	// triggered one; triggers inside it are delayed, not dropped
	Debounce time.Duration
	Logger   *slog.Logger
}

// NewScheduler creates a new refresh scheduler
func NewScheduler(cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 6 * time.Hour
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Minute
	}
	if cfg.Debounce < 0 {
		cfg.Debounce = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Scheduler{
		store:         cfg.Store,
		interval:      cfg.Interval,
		retryInterval: cfg.RetryInterval,
		debounce:      cfg.Debounce,
		logger:        cfg.Logger,
		triggerChan:   make(chan struct{}, 1),
	}
}

// Start runs the scheduler until ctx is cancelled
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("refresh scheduler started",
		"interval", s.interval,
		"debounce", s.debounce,
	)

	if !s.waitInitialised(ctx) {
		s.logger.Info("refresh scheduler stopped")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("refresh scheduler stopped")
			return

		case <-ticker.C:
			_ = s.doRefresh(ctx, "schedule")

		case <-s.triggerChan:
			s.debounceRefresh(ctx)
		}
	}
}

// Trigger requests a refresh. Requests arriving while one is pending are
// coalesced.
func (s *Scheduler) Trigger() {
	s.mu.Lock()
	if s.triggeredAt.IsZero() {
		s.triggeredAt = time.Now()
	}
	s.mu.Unlock()

	select {
	case s.triggerChan <- struct{}{}:
		s.logger.Debug("refresh triggered")
	default:
		s.logger.Debug("refresh already pending")
	}
}

// LastRefresh returns when the last successful refresh finished
func (s *Scheduler) LastRefresh() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRefresh
}

// IsRefreshing reports whether a refresh is in progress
func (s *Scheduler) IsRefreshing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshing
}

// waitInitialised retries the initial build on a backoff until it succeeds.
// It returns false if ctx ends first.
func (s *Scheduler) waitInitialised(ctx context.Context) bool {
	b := &backoff.Backoff{
		Min:    s.retryInterval,
		Max:    10 * s.retryInterval,
		Factor: 2,
	}

	for {
		err := s.initialise(ctx)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}

		wait := b.Duration()
		s.logger.Error("CMDB not initialised, retrying",
			"error", err,
			"retry_in", wait,
		)

		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
	}
}

func (s *Scheduler) initialise(ctx context.Context) error {
	if s.store == nil {
		return errNoStore
	}

	if !s.store.IsReady() {
		s.logger.Info("CMDB not ready, building")
		if err := s.store.Build(ctx); err != nil {
			return err
		}
	}

	if s.store.IsRefreshRequired() {
		s.logger.Info("CMDB refresh required, refreshing")
		return s.doRefresh(ctx, "startup")
	}

	return nil
}

func (s *Scheduler) debounceRefresh(ctx context.Context) {
	s.mu.Lock()
	triggeredAt := s.triggeredAt
	s.triggeredAt = time.Time{}
	lastStart := s.lastStart
	s.mu.Unlock()

	// A refresh that started after the trigger already covers it
	if !triggeredAt.IsZero() && triggeredAt.Before(lastStart) {
		s.logger.Debug("trigger covered by a later refresh",
			"triggered_at", triggeredAt,
			"refresh_started_at", lastStart,
		)
		return
	}

	if wait := s.debounce - time.Since(lastStart); wait > 0 {
		s.logger.Debug("refresh debounced", "wait", wait)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}

	_ = s.doRefresh(ctx, "trigger")
}

func (s *Scheduler) doRefresh(ctx context.Context, source string) error {
	s.mu.Lock()
	if s.refreshing {
		s.mu.Unlock()
		s.logger.Debug("refresh already in progress")
		return nil
	}
	s.refreshing = true
	s.lastStart = time.Now()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.refreshing = false
		s.mu.Unlock()
	}()

	start := time.Now()
	s.logger.Info("starting refresh", "source", source)

	if err := s.store.Refresh(ctx); err != nil {
		s.logger.Error("refresh failed",
			"source", source,
			"error", err,
			"duration", time.Since(start),
		)
		return err
	}

	s.mu.Lock()
	s.lastRefresh = time.Now()
	s.mu.Unlock()

	s.logger.Info("refresh completed",
		"source", source,
		"duration", time.Since(start),
		"next_refresh_in", s.interval,
	)
	return nil
}
