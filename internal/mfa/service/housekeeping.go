package service

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
)

// Sweeper is a replay guard whose expired entries must be removed by hand.
// The Redis guard expires keys itself and needs no housekeeping.
type Sweeper interface {
	Sweep(now time.Time) int
}

// HousekeepingService periodically evicts expired replay guard entries to
// prevent unbounded growth of the in-memory guard.
type HousekeepingService struct {
	Guard    Sweeper
	Clock    clockwork.Clock
	Logger   *slog.Logger
	Interval time.Duration
	Metrics  *Metrics

	cron *cron.Cron
}

// NewHousekeepingService creates a new housekeeping service with the given interval.
// If interval is 0 or negative, defaults to 1 minute.
func NewHousekeepingService(guard Sweeper, clock clockwork.Clock, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Minute
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &HousekeepingService{
		Guard:    guard,
		Clock:    clock,
		Logger:   logger,
		Interval: interval,
	}
}

// Start schedules the sweep and runs it once immediately. It is non-blocking;
// call Stop to shut the scheduler down.
func (s *HousekeepingService) Start() error {
	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.Interval), s.cleanup); err != nil {
		return fmt.Errorf("failed to schedule replay sweep: %w", err)
	}
	s.cron = c

	s.cleanup()
	c.Start()

	s.Logger.Info("housekeeping service started", "interval", s.Interval)
	return nil
}

// Stop halts the scheduler and blocks until any in-progress sweep finishes.
func (s *HousekeepingService) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) cleanup() {
	removed := s.Guard.Sweep(s.Clock.Now())
	s.Metrics.observeSwept(removed)
	s.Logger.Debug("replay guard sweep completed", "removed", removed)
}
