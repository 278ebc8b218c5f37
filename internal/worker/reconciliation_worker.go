package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/ayo6706/interbank-transfers/internal/observability"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const defaultSchedule = "@every 1h"

// Job is one unit of scheduled work.
type Job interface {
	Run(ctx context.Context) error
}

// ReconciliationWorker runs ledger checks on a cron schedule.
type ReconciliationWorker struct {
	job      Job
	schedule string
	cron     *cron.Cron
	stopOnce sync.Once
}

// NewReconciliationWorker constructs a worker on the default hourly schedule.
func NewReconciliationWorker(job Job) *ReconciliationWorker {
	return &ReconciliationWorker{
		job:      job,
		schedule: defaultSchedule,
		cron:     cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
	}
}

// WithSchedule updates the cron spec, e.g. "@every 30m" or "0 * * * *".
func (w *ReconciliationWorker) WithSchedule(spec string) *ReconciliationWorker {
	if spec != "" {
		w.schedule = spec
	}
	return w
}

// Start registers the job, runs it once immediately and starts the scheduler.
func (w *ReconciliationWorker) Start(ctx context.Context) error {
	if _, err := w.cron.AddFunc(w.schedule, func() { w.runOnce(ctx) }); err != nil {
		return fmt.Errorf("schedule reconciliation %q: %w", w.schedule, err)
	}
	zap.L().Info("reconciliation worker starting", zap.String("schedule", w.schedule))

	go w.runOnce(ctx)
	w.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for a running job to finish.
func (w *ReconciliationWorker) Stop() {
	w.stopOnce.Do(func() {
		<-w.cron.Stop().Done()
		zap.L().Info("reconciliation worker stopped")
	})
}

// Run starts the worker and returns a stop function.
func (w *ReconciliationWorker) Run(ctx context.Context) (func(), error) {
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	return w.Stop, nil
}

func (w *ReconciliationWorker) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := w.job.Run(ctx); err != nil {
		observability.IncrementWorkerRun("reconciliation", "failed")
		zap.L().Error("reconciliation run failed", zap.Error(err))
		return
	}
	observability.IncrementWorkerRun("reconciliation", "success")
}
