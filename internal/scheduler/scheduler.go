// Package scheduler keeps the quote cache warm on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Refresher is called on every tick.
type Refresher interface {
	Refresh(ctx context.Context)
}

type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	logger *slog.Logger
}

// New registers r under schedule, which uses six fields with seconds first, or a
// descriptor such as "@every 1m". Overlapping ticks are skipped.
func New(ctx context.Context, schedule string, r Refresher, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	s := &Scheduler{cron: c, ctx: ctx, logger: logger}
	if _, err := c.AddFunc(schedule, func() {
		s.logger.Debug("scheduled refresh")
		r.Refresh(s.ctx)
	}); err != nil {
		return nil, fmt.Errorf("register refresh %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started")
}

// Stop waits for a running refresh to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}
