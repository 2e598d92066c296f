package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/gorelikserver/scada-sms/internal/alarm_service/domain"
	"github.com/gorelikserver/scada-sms/internal/alarm_service/provider"
)

// DispatcherConfig holds configuration specific to the Dispatcher.
type DispatcherConfig struct {
	// Concurrency bounds parallel sends within one job.
	Concurrency int `mapstructure:"DISPATCH_CONCURRENCY"`
}

// Lease guards RunOnce across hosts. Acquire returns
// domain.ErrDispatchInProgress when another holder has it.
type Lease interface {
	Acquire(ctx context.Context) (release func(context.Context) error, err error)
}

// RunSummary counts what one RunOnce did.
type RunSummary struct {
	JobsProcessed    int `json:"jobs_processed"`
	JobsCompleted    int `json:"jobs_completed"`
	JobsFailed       int `json:"jobs_failed"`
	Deliveries       int `json:"deliveries"`
	DeliveryFailures int `json:"delivery_failures"`
	// FinalizeErrors counts jobs whose terminal status could not be written.
	FinalizeErrors int `json:"finalize_errors"`
	// ClaimsLost counts jobs abandoned mid-send because another dispatcher
	// reclaimed them.
	ClaimsLost int `json:"claims_lost"`
}

// Dispatcher drains the queue: each job is resolved to recipients, sent to
// each of them, audited per attempt and finalized.
type Dispatcher struct {
	queue     domain.JobQueue
	resolver  Resolver
	sender    provider.SMSSenderProvider
	audit     domain.AuditRepository
	publisher OutcomePublisher
	lease     Lease
	logger    *slog.Logger
	config    DispatcherConfig
	now       func() time.Time
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithOutcomePublisher publishes an event per finalized job.
func WithOutcomePublisher(p OutcomePublisher) DispatcherOption {
	return func(d *Dispatcher) { d.publisher = p }
}

// WithLease makes RunOnce hold l for its whole run.
func WithLease(l Lease) DispatcherOption {
	return func(d *Dispatcher) { d.lease = l }
}

func NewDispatcher(
	queue domain.JobQueue,
	resolver Resolver,
	sender provider.SMSSenderProvider,
	audit domain.AuditRepository,
	logger *slog.Logger,
	cfg DispatcherConfig,
	opts ...DispatcherOption,
) *Dispatcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	d := &Dispatcher{
		queue:     queue,
		resolver:  resolver,
		sender:    sender,
		audit:     audit,
		publisher: NoopOutcomePublisher{},
		logger:    logger.With("component", "dispatcher"),
		config:    cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RunOnce processes pending jobs oldest first until the queue is drained.
// Per-job and per-recipient failures are recorded on the job and never abort
// the run; only queue access errors and cancellation end it early.
func (d *Dispatcher) RunOnce(ctx context.Context) (RunSummary, error) {
	var summary RunSummary

	if d.lease != nil {
		release, err := d.lease.Acquire(ctx)
		if err != nil {
			d.logger.WarnContext(ctx, "Dispatch lease not acquired", "error", err)
			return summary, err
		}
		defer func() {
			if relErr := release(context.WithoutCancel(ctx)); relErr != nil {
				d.logger.ErrorContext(ctx, "Failed to release dispatch lease", "error", relErr)
			}
		}()
	}

	d.logger.InfoContext(ctx, "Looking for alarms to process")
	seen := make(map[string]struct{})
	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		job, err := d.queue.DequeueNext(ctx)
		if err != nil {
			d.logger.ErrorContext(ctx, "Failed to dequeue next job", "error", err)
			return summary, fmt.Errorf("dequeue next job: %w", err)
		}
		if job == nil {
			break
		}
		if _, dup := seen[job.ID]; dup {
			d.logger.WarnContext(ctx, "Job handed out twice in one run, stopping", "job_id", job.ID)
			break
		}
		seen[job.ID] = struct{}{}

		d.processJob(ctx, job, &summary)
	}

	d.logger.InfoContext(ctx, "No more alarms to process",
		"jobs_processed", summary.JobsProcessed, "jobs_completed", summary.JobsCompleted,
		"jobs_failed", summary.JobsFailed, "deliveries", summary.Deliveries,
		"delivery_failures", summary.DeliveryFailures, "claims_lost", summary.ClaimsLost)
	return summary, nil
}

func (d *Dispatcher) processJob(ctx context.Context, job *domain.AlarmJob, summary *RunSummary) {
	timer := prometheus.NewTimer(jobProcessingDurationHist)
	defer timer.ObserveDuration()

	summary.JobsProcessed++
	d.logger.InfoContext(ctx, "Processing alarm", "job_id", job.ID, "group_id", job.GroupID,
		"restricted_day_override", job.OverrideLabel())

	recipients, err := d.resolver.Resolve(ctx, job.GroupID, job.RestrictedDay)
	if err != nil {
		d.logger.ErrorContext(ctx, "Error resolving recipients", "job_id", job.ID, "group_id", job.GroupID, "error", err)
		d.finalize(ctx, job, domain.StatusFailed, err.Error(), 0, 0, summary)
		return
	}
	if len(recipients) == 0 {
		d.logger.WarnContext(ctx, "No SMS-enabled recipients found for group", "job_id", job.ID, "group_id", job.GroupID)
		d.finalize(ctx, job, domain.StatusCompleted, "", 0, 0, summary)
		return
	}

	var (
		ok        = make([]bool, len(recipients))
		attempted = make([]bool, len(recipients))
		claimLost atomic.Bool
	)
	var g errgroup.Group
	g.SetLimit(d.config.Concurrency)
	for i, rec := range recipients {
		i, rec := i, rec
		g.Go(func() error {
			if claimLost.Load() || !d.holdsClaim(ctx, job) {
				claimLost.Store(true)
				return nil
			}
			attempted[i] = true
			ok[i] = d.deliver(ctx, job, rec)
			return nil
		})
	}
	_ = g.Wait()

	sent, failed := 0, 0
	for i := range recipients {
		if !attempted[i] {
			continue
		}
		sent++
		if !ok[i] {
			failed++
		}
	}
	summary.Deliveries += sent
	summary.DeliveryFailures += failed

	if claimLost.Load() {
		summary.ClaimsLost++
		jobsProcessedCounter.WithLabelValues("claim_lost").Inc()
		d.logger.ErrorContext(ctx, "Job reclaimed by another dispatcher, stopped sending",
			"job_id", job.ID, "recipients", len(recipients), "sent", sent)
		return
	}

	if failed == 0 {
		d.finalize(ctx, job, domain.StatusCompleted, "", len(recipients), 0, summary)
		return
	}
	reason := fmt.Sprintf("%d of %d recipients failed", failed, len(recipients))
	d.finalize(ctx, job, domain.StatusFailed, reason, len(recipients), failed, summary)
}

// holdsClaim renews the job's claim before a send. Only a lost claim stops
// delivery; other renewal errors leave the claim as it was and are logged.
func (d *Dispatcher) holdsClaim(ctx context.Context, job *domain.AlarmJob) bool {
	if job.ClaimToken == "" {
		return true
	}
	err := d.queue.RenewClaim(ctx, job.ID, job.ClaimToken)
	switch {
	case err == nil:
		return true
	case errors.Is(err, domain.ErrClaimLost):
		return false
	default:
		d.logger.WarnContext(ctx, "Could not renew job claim", "job_id", job.ID, "error", err)
		return true
	}
}

// deliver sends to one recipient and writes its audit record. It reports
// success only when both the send and the audit write succeeded.
func (d *Dispatcher) deliver(ctx context.Context, job *domain.AlarmJob, rec domain.Recipient) bool {
	resp, sendErr := d.sender.Send(ctx, provider.SendRequestDetails{
		JobID:       job.ID,
		RecipientID: rec.UserID,
		PhoneNumber: rec.PhoneNumber,
		Message:     job.Description,
	})

	record := &domain.AuditRecord{
		JobID:       job.ID,
		RecipientID: rec.UserID,
		PhoneNumber: rec.PhoneNumber,
		Description: job.Description,
		CreatedAt:   d.now().UTC(),
	}
	if resp != nil {
		record.GatewayStatus = resp.GatewayStatus
		record.Response = resp.RawResponse
	}
	if sendErr != nil {
		record.Status = domain.DeliveryFailed
		record.Response = sendErr.Error()
		d.logger.ErrorContext(ctx, "Failed to send SMS", "job_id", job.ID, "recipient_id", rec.UserID, "error", sendErr)
	} else {
		record.Status = domain.DeliverySuccess
	}
	deliveryAttemptsCounter.WithLabelValues(d.sender.GetName(), string(record.Status)).Inc()

	// The attempt happened, so its record is written even if the run is being cancelled.
	if err := d.audit.Append(context.WithoutCancel(ctx), record); err != nil {
		auditFailuresCounter.Inc()
		d.logger.ErrorContext(ctx, "Audit logging failed", "job_id", job.ID, "recipient_id", rec.UserID,
			"delivery_status", record.Status, "error", err)
		return false
	}
	return sendErr == nil
}

func (d *Dispatcher) finalize(ctx context.Context, job *domain.AlarmJob, status domain.JobStatus, reason string, recipients, failed int, summary *RunSummary) {
	finalCtx := context.WithoutCancel(ctx)

	var err error
	if status == domain.StatusCompleted {
		err = d.queue.MarkCompleted(finalCtx, job.ID)
	} else {
		err = d.queue.MarkFailed(finalCtx, job.ID, reason)
	}
	if err != nil {
		summary.FinalizeErrors++
		jobsProcessedCounter.WithLabelValues("error_finalize").Inc()
		d.logger.ErrorContext(ctx, "Failed to finalize job", "job_id", job.ID, "status", status, "error", err)
		return
	}

	if status == domain.StatusCompleted {
		summary.JobsCompleted++
		d.logger.InfoContext(ctx, "Alarm processed successfully", "job_id", job.ID, "recipients", recipients)
	} else {
		summary.JobsFailed++
		d.logger.ErrorContext(ctx, "Alarm processing had failures", "job_id", job.ID, "reason", reason)
	}
	jobsProcessedCounter.WithLabelValues(string(status)).Inc()

	outcome := JobOutcome{
		JobID:      job.ID,
		GroupID:    job.GroupID,
		Status:     status,
		Error:      reason,
		Recipients: recipients,
		Failed:     failed,
		FinishedAt: d.now().UTC(),
	}
	if err := d.publisher.PublishOutcome(finalCtx, outcome); err != nil {
		d.logger.WarnContext(ctx, "Failed to publish job outcome", "job_id", job.ID, "error", err)
	}
}
