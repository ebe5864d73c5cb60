package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/gatekeeper/pkg/observability"
)

const purgeTimeout = 5 * time.Minute

// Scheduler runs the periodic maintenance jobs
type Scheduler struct {
	cron   *cron.Cron
	logger *observability.Logger
}

// NewScheduler schedules the session purge job. A nil scheduler is returned
// when no purge schedule is configured.
func (a *App) NewScheduler() (*Scheduler, error) {
	spec := a.Config.Session.PurgeSchedule
	if spec == "" {
		a.Logger.Info("Session purge job disabled")
		return nil, nil
	}

	logger := a.Logger.WithField("job", "session_purge")
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(spec, observability.Guard(logger, "session_purge", func() {
		ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
		defer cancel()
		if err := a.PurgeSessions(ctx); err != nil {
			logger.WithError(err).Error("Session purge failed")
		}
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to schedule session purge %q: %w", spec, err)
	}

	logger.WithField("schedule", spec).Info("Session purge job scheduled")
	return &Scheduler{cron: c, logger: logger}, nil
}

// Start runs the scheduler in the background
func (s *Scheduler) Start() {
	if s == nil {
		return
	}
	s.cron.Start()
	s.logger.Debug("Scheduler started")
}

// Stop stops scheduling and waits for a running job, bounded by ctx
func (s *Scheduler) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("session purge still running at shutdown: %w", ctx.Err())
	}
}

// Entries reports how many jobs are scheduled
func (s *Scheduler) Entries() int {
	if s == nil {
		return 0
	}
	return len(s.cron.Entries())
}
