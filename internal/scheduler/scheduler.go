// Package scheduler advances simulation sessions on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Advancer advances every live session by one tick and reports how many
// sessions advanced.
type Advancer interface {
	AdvanceAll(ctx context.Context) int
}

// AutoAdvancer runs an Advancer on a six-field (with seconds) cron schedule.
type AutoAdvancer struct {
	cron     *cron.Cron
	advancer Advancer
	ctx      context.Context
}

// New creates an AutoAdvancer. Jobs run with ctx.
func New(ctx context.Context, advancer Advancer) *AutoAdvancer {
	return &AutoAdvancer{
		cron:     cron.New(cron.WithSeconds()),
		advancer: advancer,
		ctx:      ctx,
	}
}

// Register schedules the advance job.
func (a *AutoAdvancer) Register(spec string) error {
	if _, err := a.cron.AddFunc(spec, a.RunNow); err != nil {
		return fmt.Errorf("register advance job: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (a *AutoAdvancer) Start() {
	a.cron.Start()
	slog.Info("scheduler started", "jobs", len(a.cron.Entries()))
}

// Stop stops the scheduler and waits for a running job to finish.
func (a *AutoAdvancer) Stop() {
	<-a.cron.Stop().Done()
	slog.Info("scheduler stopped")
}

// RunNow advances every session immediately.
func (a *AutoAdvancer) RunNow() {
	if a.ctx.Err() != nil {
		return
	}
	n := a.advancer.AdvanceAll(a.ctx)
	slog.Info("scheduled advance", "sessions", n)
}
