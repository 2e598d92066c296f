package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gorelikserver/scada-sms/internal/alarm_service/domain"
)

// Runner is the part of the Dispatcher the worker drives.
type Runner interface {
	RunOnce(ctx context.Context) (RunSummary, error)
}

// DispatchWorker runs the dispatcher in the background. Triggers that arrive
// while a run is in progress collapse into one follow-up run, so RunOnce never
// overlaps itself within the process.
type DispatchWorker struct {
	runner       Runner
	logger       *slog.Logger
	pollInterval time.Duration
	trigger      chan struct{}
}

// NewDispatchWorker builds a worker. A zero pollInterval disables periodic runs.
func NewDispatchWorker(runner Runner, pollInterval time.Duration, logger *slog.Logger) *DispatchWorker {
	return &DispatchWorker{
		runner:       runner,
		logger:       logger.With("component", "dispatch_worker"),
		pollInterval: pollInterval,
		trigger:      make(chan struct{}, 1),
	}
}

// Trigger requests a run without blocking.
func (w *DispatchWorker) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled.
func (w *DispatchWorker) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if w.pollInterval > 0 {
		ticker := time.NewTicker(w.pollInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	w.logger.InfoContext(ctx, "Dispatch worker started", "poll_interval", w.pollInterval)
	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "Dispatch worker stopping")
			return nil
		case <-w.trigger:
		case <-tick:
		}
		w.runOnce(ctx)
	}
}

func (w *DispatchWorker) runOnce(ctx context.Context) {
	summary, err := w.runner.RunOnce(ctx)
	switch {
	case err == nil:
		if summary.JobsProcessed > 0 {
			w.logger.InfoContext(ctx, "Dispatch run finished", "jobs_processed", summary.JobsProcessed,
				"jobs_failed", summary.JobsFailed, "delivery_failures", summary.DeliveryFailures)
		}
	case errors.Is(err, context.Canceled):
	case errors.Is(err, domain.ErrDispatchInProgress), errors.Is(err, domain.ErrLockContention):
		w.logger.InfoContext(ctx, "Dispatch run skipped, queue busy", "error", err)
	default:
		w.logger.ErrorContext(ctx, "Dispatch run failed", "error", err)
	}
}
