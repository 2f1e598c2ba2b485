// Package cronrunner runs periodic maintenance jobs on standard cron schedules.
package cronrunner

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Runner schedules jobs and hands each run the base context.
type Runner struct {
	cron    *cron.Cron
	baseCtx context.Context
}

// New creates a Runner whose schedules are evaluated in UTC.
func New(baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Runner{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cron.DiscardLogger)),
		),
		baseCtx: baseCtx,
	}
}

// Add registers job under a standard 5-field or descriptor schedule.
func (r *Runner) Add(name, schedule string, job func(context.Context)) (cron.EntryID, error) {
	id, err := r.cron.AddFunc(schedule, func() {
		start := time.Now()
		job(r.baseCtx)
		slog.Debug("cron_job_done", "job", name, "duration", time.Since(start))
	})
	if err != nil {
		return 0, err
	}

	slog.Info("cron_job_registered", "job", name, "schedule", schedule)
	return id, nil
}

// Start runs the scheduler in its own goroutine.
func (r *Runner) Start() {
	r.cron.Start()
	for _, e := range r.cron.Entries() {
		slog.Debug("cron_next_run", "entry", e.ID, "next", e.Next)
	}
	slog.Info("cron_started", "jobs", len(r.cron.Entries()))
}

// Stop stops scheduling and waits for running jobs.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	slog.Info("cron_stopped")
}

// Resetter clears accumulated dedup state.
type Resetter interface {
	ResetDedup()
}

// AddDedupReset registers the periodic dedup table reset.
func (r *Runner) AddDedupReset(schedule string, target Resetter) (cron.EntryID, error) {
	return r.Add("dedup_reset", schedule, func(context.Context) {
		target.ResetDedup()
	})
}
