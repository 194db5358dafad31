// Package scheduler repeats a sync pass forever, sleeping a fixed interval
// between passes.
package scheduler

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"github.com/sidkik/foldersync/pkg/errors"
)

// Config contains the parameters of a Scheduler.
type Config struct {
	// Pass runs a single sync pass.
	Pass func() error

	// Interval is how long to sleep after a pass finishes before starting
	// the next one.
	Interval time.Duration

	// Trigger wakes the scheduler before Interval has elapsed. It's
	// optional.
	Trigger <-chan struct{}

	// Clock defaults to the real clock.
	Clock clockwork.Clock

	// Log defaults to the standard logrus logger.
	Log log.FieldLogger
}

// Scheduler alternates between running a pass and sleeping. A failed pass
// never stops the loop.
type Scheduler struct {
	pass     func() error
	interval time.Duration
	trigger  <-chan struct{}
	clock    clockwork.Clock
	log      log.FieldLogger
}

// New creates a Scheduler.
func New(cfg Config) *Scheduler {
	s := &Scheduler{
		pass:     cfg.Pass,
		interval: cfg.Interval,
		trigger:  cfg.Trigger,
		clock:    cfg.Clock,
		log:      cfg.Log,
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.log == nil {
		s.log = log.StandardLogger()
	}
	return s
}

// Run runs passes until ctx is cancelled. A pass that's in progress is never
// interrupted, so cancellation takes effect once it finishes. The sleep
// starts when a pass ends, so a pass that takes longer than the interval
// isn't followed by a burst of catch-up passes.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		// The error is logged by RunOnce. The next pass retries from scratch.
		_ = s.RunOnce()

		if err := ctx.Err(); err != nil {
			return err
		}

		s.log.WithField("interval", s.interval).Debug("Waiting for the next sync pass")
		timer := s.clock.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.Chan():
		case <-s.trigger:
			timer.Stop()
			s.log.Debug("Change detected. Starting sync pass early.")
		}
	}
}

// RunOnce runs a single pass. Errors and panics are logged and returned
// rather than propagated.
func (s *Scheduler) RunOnce() (err error) {
	start := s.clock.Now()
	s.log.Info("Starting sync pass")

	defer func() {
		if r := recover(); r != nil {
			err = errors.New("panic: %v", r)
		}

		if err != nil {
			s.log.WithError(err).Error("Sync pass failed")
			return
		}
		s.log.WithField("duration", s.clock.Since(start)).Debug("Sync pass finished")
	}()

	return s.pass()
}
