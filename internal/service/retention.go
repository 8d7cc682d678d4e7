package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"propscan-api/internal/logger"
	"propscan-api/internal/repository"
)

// RetentionConfig holds configuration for the retention scheduler.
type RetentionConfig struct {
	// MaxAge is how long remote scan records are kept.
	// Default: 90 days
	MaxAge time.Duration

	// Interval is how often the cleanup runs.
	// Default: 24 hours
	Interval time.Duration

	// InitialDelay postpones the first run after Start.
	// Default: 1 minute
	InitialDelay time.Duration
}

// RetentionScheduler periodically prunes old scan records from the store.
type RetentionScheduler struct {
	repo      repository.ScanRecordRepository
	config    RetentionConfig
	now       func() time.Time
	log       zerolog.Logger
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
	isRunning bool
	mu        sync.Mutex
}

// NewRetentionScheduler creates a new retention scheduler.
func NewRetentionScheduler(repo repository.ScanRecordRepository, config RetentionConfig) *RetentionScheduler {
	if config.MaxAge == 0 {
		config.MaxAge = 90 * 24 * time.Hour
	}
	if config.Interval == 0 {
		config.Interval = 24 * time.Hour
	}
	if config.InitialDelay == 0 {
		config.InitialDelay = time.Minute
	}

	return &RetentionScheduler{
		repo:   repo,
		config: config,
		now:    time.Now,
		log:    logger.WithComponent("RetentionScheduler"),
		stopCh: make(chan struct{}),
	}
}

// Start begins the retention scheduler.
func (s *RetentionScheduler) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.ticker = time.NewTicker(s.config.Interval)
	s.mu.Unlock()

	s.log.Info().
		Dur("interval", s.config.Interval).
		Dur("max_age", s.config.MaxAge).
		Msg("Started")

	go func() {
		select {
		case <-time.After(s.config.InitialDelay):
			s.runCleanup()
		case <-s.stopCh:
		}
	}()

	go s.run()
}

func (s *RetentionScheduler) run() {
	for {
		select {
		case <-s.ticker.C:
			s.runCleanup()
		case <-s.stopCh:
			s.log.Info().Msg("Stopped")
			return
		}
	}
}

func (s *RetentionScheduler) runCleanup() {
	deleted, err := s.RunNow()
	if err != nil {
		s.log.Error().Err(err).Msg("Retention cleanup failed")
		return
	}

	if deleted > 0 {
		s.log.Info().Int64("deleted", deleted).Msg("Pruned old scan records")
	} else {
		s.log.Debug().Msg("No scan records to prune")
	}
}

// Stop stops the retention scheduler.
func (s *RetentionScheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
		s.isRunning = false
	})
}

// RunNow triggers an immediate cleanup run.
func (s *RetentionScheduler) RunNow() (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	return s.repo.DeleteOlderThan(ctx, s.now().Add(-s.config.MaxAge))
}
