// Package scheduler runs one callback on a fixed, adjustable interval in a
// background goroutine.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrAlreadyRunning  = errors.New("scheduler already running")
	ErrNotRunning      = errors.New("scheduler not running")
	ErrNoCallback      = errors.New("no check callback set")
	ErrInvalidInterval = errors.New("interval must be at least 1 minute")
)

const (
	// DefaultIntervalMinutes applies when New is given a value below 1.
	DefaultIntervalMinutes = 60

	defaultCooldown = 60 * time.Second
	stopTimeout     = 5 * time.Second
)

// Callback is one scheduled pass.
type Callback func(ctx context.Context) error

// Status is a snapshot of the scheduler.
type Status struct {
	Running         bool       `json:"running"`
	IntervalMinutes int        `json:"interval_minutes"`
	LastCheck       *time.Time `json:"last_check"`
	NextCheck       *time.Time `json:"next_check"`
}

// Scheduler is either stopped or running exactly one loop goroutine.
type Scheduler struct {
	logger   *zap.Logger
	unit     time.Duration
	cooldown time.Duration
	now      func() time.Time

	mu        sync.Mutex
	callback  Callback
	interval  int
	running   bool
	lastCheck *time.Time
	stop      chan struct{}
	done      chan struct{}
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithUnit sets the length of one interval unit, a minute by default.
func WithUnit(d time.Duration) Option {
	return func(s *Scheduler) { s.unit = d }
}

// WithCooldown sets the pause that follows a failed pass.
func WithCooldown(d time.Duration) Option {
	return func(s *Scheduler) { s.cooldown = d }
}

// WithClock replaces the clock used to stamp passes.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a stopped scheduler. cb may be nil and set later.
func New(cb Callback, intervalMinutes int, logger *zap.Logger, opts ...Option) *Scheduler {
	if intervalMinutes < 1 {
		intervalMinutes = DefaultIntervalMinutes
	}
	s := &Scheduler{
		logger:   logger,
		unit:     time.Minute,
		cooldown: defaultCooldown,
		now:      time.Now,
		callback: cb,
		interval: intervalMinutes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the loop. ctx bounds the loop and every pass it runs.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	if s.callback == nil {
		return ErrNoCallback
	}

	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(ctx, s.stop, s.done)

	s.logger.Info("scheduler started", zap.Int("interval_minutes", s.interval))
	return nil
}

// Stop signals the loop and waits briefly for it to exit. A pass in
// progress is not interrupted; the loop exits once it returns.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.running = false
	close(s.stop)
	done := s.done
	s.mu.Unlock()

	t := time.NewTimer(stopTimeout)
	defer t.Stop()
	select {
	case <-done:
		s.logger.Info("scheduler stopped")
	case <-t.C:
		s.logger.Warn("scheduler stopped while a pass is still running")
	}
	return nil
}

// SetInterval changes the wait used from the next cycle on.
func (s *Scheduler) SetInterval(minutes int) error {
	if minutes < 1 {
		return ErrInvalidInterval
	}
	s.mu.Lock()
	s.interval = minutes
	s.mu.Unlock()
	s.logger.Info("check interval updated", zap.Int("interval_minutes", minutes))
	return nil
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Status returns a snapshot. NextCheck is the last pass plus the interval
// and is absent until a pass has run.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{Running: s.running, IntervalMinutes: s.interval}
	if s.lastCheck != nil {
		last := *s.lastCheck
		next := last.Add(time.Duration(s.interval) * time.Minute)
		st.LastCheck = &last
		st.NextCheck = &next
	}
	return st
}

func (s *Scheduler) loop(ctx context.Context, stop <-chan struct{}, done chan struct{}) {
	defer func() {
		// Leaving on ctx cancellation also ends the RUNNING state.
		s.mu.Lock()
		if s.done == done {
			s.running = false
		}
		s.mu.Unlock()
		close(done)
	}()

	for {
		s.mu.Lock()
		wait := time.Duration(s.interval) * s.unit
		s.mu.Unlock()

		if !sleep(ctx, stop, wait) {
			return
		}

		if err := s.runPass(ctx); err != nil {
			s.logger.Error("scheduled check failed", zap.Error(err), zap.Duration("cooldown", s.cooldown))
			if !sleep(ctx, stop, s.cooldown) {
				return
			}
		}
	}
}

func (s *Scheduler) runPass(ctx context.Context) (err error) {
	s.mu.Lock()
	cb := s.callback
	now := s.now()
	s.lastCheck = &now
	s.mu.Unlock()
	start := time.Now()

	passID := uuid.NewString()
	logger := s.logger.With(zap.String("pass_id", passID))
	logger.Info("scheduled check started")

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduled check panicked: %v", r)
		}
	}()

	if cb == nil {
		return ErrNoCallback
	}
	if err := cb(ctx); err != nil {
		return err
	}
	logger.Info("scheduled check completed", zap.Duration("took", time.Since(start)))
	return nil
}

// sleep waits for d and reports whether the loop should go on.
func sleep(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-stop:
		return false
	case <-t.C:
	}
	select {
	case <-stop:
		return false
	default:
		return true
	}
}
