package reminders

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"studiobook/internal/availability"
)

// SchedulerConfig holds configuration for the digest scheduler.
type SchedulerConfig struct {
	// Timezone for scheduling (e.g., "Asia/Bangkok")
	Timezone string
	// DailyHour is the hour (0-23) when the digest is sent.
	DailyHour int
	// DailyMinute is the minute (0-59) when the digest is sent.
	DailyMinute int
	// CheckInterval is how often to check if it's time to run.
	CheckInterval time.Duration
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Timezone:      "UTC",
		DailyHour:     9,
		DailyMinute:   0,
		CheckInterval: time.Minute,
	}
}

// Scheduler sends the digest once a day at the configured local time.
type Scheduler struct {
	config   SchedulerConfig
	source   Source
	out      Broadcaster
	location *time.Location
	now      func() time.Time
	logger   zerolog.Logger

	mu          sync.Mutex
	lastRunDate string // YYYY-MM-DD of last run
	running     bool
	stopCh      chan struct{}
}

func NewScheduler(config SchedulerConfig, source Source, out Broadcaster, logger *zerolog.Logger) (*Scheduler, error) {
	if config.Timezone == "" {
		config.Timezone = "UTC"
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = time.Minute
	}
	if config.DailyHour < 0 || config.DailyHour > 23 || config.DailyMinute < 0 || config.DailyMinute > 59 {
		return nil, fmt.Errorf("invalid daily time %02d:%02d", config.DailyHour, config.DailyMinute)
	}

	loc, err := time.LoadLocation(config.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", config.Timezone, err)
	}

	return &Scheduler{
		config:   config,
		source:   source,
		out:      out,
		location: loc,
		now:      time.Now,
		logger:   logger.With().Str("component", "reminders").Logger(),
	}, nil
}

// Start runs the scheduler loop until ctx is done or Stop is called.
// A stopped scheduler may be started again.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stop := s.stopCh
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.stopCh == stop {
			s.running = false
		}
		s.mu.Unlock()
	}()

	s.logger.Info().
		Str("timezone", s.config.Timezone).
		Str("daily_time", s.formatTime()).
		Msg("Digest scheduler started")

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Digest scheduler stopped by context")
			return
		case <-stop:
			s.logger.Info().Msg("Digest scheduler stopped")
			return
		case <-ticker.C:
			s.checkAndRun(ctx)
		}
	}
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.running {
		s.running = false
		close(s.stopCh)
	}
	s.mu.Unlock()
}

// checkAndRun sends the digest when the daily time has been reached and it
// has not gone out yet today. It reports whether a run happened.
func (s *Scheduler) checkAndRun(ctx context.Context) bool {
	now := s.now().In(s.location)
	today := now.Format(availability.DateLayout)

	s.mu.Lock()
	alreadyRan := s.lastRunDate == today
	s.mu.Unlock()
	if alreadyRan {
		return false
	}

	due := time.Date(now.Year(), now.Month(), now.Day(), s.config.DailyHour, s.config.DailyMinute, 0, 0, s.location)
	if now.Before(due) {
		return false
	}

	s.mu.Lock()
	s.lastRunDate = today
	s.mu.Unlock()

	if _, err := s.RunNow(ctx); err != nil {
		s.logger.Error().Err(err).Str("date", today).Msg("Daily digest failed")
	}
	return true
}

// RunNow builds and sends today's digest immediately. An empty digest is not sent.
func (s *Scheduler) RunNow(ctx context.Context) (Digest, error) {
	today := s.now().In(s.location).Format(availability.DateLayout)

	bookings, err := s.source.All(ctx)
	if err != nil {
		return Digest{}, fmt.Errorf("list bookings: %w", err)
	}

	d := Collect(bookings, today)
	if d.Empty() {
		s.logger.Debug().Str("date", today).Msg("Nothing to remind")
		return d, nil
	}

	if err := s.out.Broadcast(ctx, Format(d)); err != nil {
		return d, fmt.Errorf("send digest: %w", err)
	}

	s.logger.Info().
		Str("date", today).
		Int("pending", len(d.Pending)).
		Int("unreported", len(d.Unreported)).
		Msg("Daily digest sent")
	return d, nil
}

func (s *Scheduler) formatTime() string {
	return time.Date(2000, 1, 1, s.config.DailyHour, s.config.DailyMinute, 0, 0, time.UTC).Format("15:04")
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
