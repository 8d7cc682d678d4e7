package scan

import (
	"context"
	"sync"
	"time"
)

// StopReason tells why a scheduler loop ended.
type StopReason string

const (
	ReasonFinished StopReason = "finished"
	ReasonStopped  StopReason = "stopped"
	ReasonTimeout  StopReason = "timeout"
	ReasonCanceled StopReason = "canceled"
)

// Scheduler drives a tick function on a fixed interval under a hard
// timeout. The timeout goes through Stop, the same path a caller uses.
type Scheduler struct {
	clock    Clock
	interval time.Duration
	timeout  time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	timedOut bool
}

// NewScheduler creates a scheduler. A zero timeout disables the ceiling.
func NewScheduler(clock Clock, interval, timeout time.Duration) *Scheduler {
	if clock == nil {
		clock = realClock{}
	}
	return &Scheduler{
		clock:    clock,
		interval: interval,
		timeout:  timeout,
		stopCh:   make(chan struct{}),
	}
}

// Run calls tick immediately and then on every interval until tick
// returns false, Stop is called, the timeout elapses or ctx is done.
func (s *Scheduler) Run(ctx context.Context, tick func() bool) StopReason {
	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if s.timeout > 0 {
		deadline = s.clock.After(s.timeout)
	}

	if s.stopped() {
		return s.stopReason()
	}
	if !tick() {
		return ReasonFinished
	}

	for {
		select {
		case <-ctx.Done():
			s.Stop()
			return ReasonCanceled
		case <-s.stopCh:
			return s.stopReason()
		case <-deadline:
			s.mu.Lock()
			s.timedOut = true
			s.mu.Unlock()
			s.Stop()
			return ReasonTimeout
		case <-ticker.Chan():
			if s.stopped() {
				return s.stopReason()
			}
			if !tick() {
				return ReasonFinished
			}
		}
	}
}

// Stop halts the loop. Safe to call more than once and from any goroutine.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

func (s *Scheduler) stopped() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

func (s *Scheduler) stopReason() StopReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timedOut {
		return ReasonTimeout
	}
	return ReasonStopped
}
