package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/gorelikserver/scada-sms/internal/alarm_service/domain"
)

// Config holds configuration specific to the FileQueue.
type Config struct {
	Dir            string        `mapstructure:"QUEUE_DIR"`
	LockTimeout    time.Duration `mapstructure:"QUEUE_LOCK_TIMEOUT"`
	LockRetryDelay time.Duration `mapstructure:"QUEUE_LOCK_RETRY_DELAY"`
	// StaleClaimAfter is how long a processing job may go without a claim
	// renewal before it is considered abandoned and may be claimed again.
	// Zero disables reclaiming.
	StaleClaimAfter time.Duration `mapstructure:"QUEUE_STALE_CLAIM_AFTER"`
}

const (
	defaultLockTimeout    = 5 * time.Second
	defaultLockRetryDelay = 50 * time.Millisecond
)

// FileQueue is a durable alarm job queue that stores one JSON record per job
// in a shared directory.
type FileQueue struct {
	dir    string
	cfg    Config
	lock   *dirLock
	logger *slog.Logger
	now    func() time.Time
}

var _ domain.JobQueue = (*FileQueue)(nil)

// NewFileQueue opens (creating if needed) the queue directory.
func NewFileQueue(cfg Config, logger *slog.Logger) (*FileQueue, error) {
	if cfg.Dir == "" {
		return nil, errors.New("queue directory is not configured")
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = defaultLockTimeout
	}
	if cfg.LockRetryDelay <= 0 {
		cfg.LockRetryDelay = defaultLockRetryDelay
	}

	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolve queue dir %s: %w", cfg.Dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("open queue store %s: %w", dir, err)
	}

	return &FileQueue{
		dir:    dir,
		cfg:    cfg,
		lock:   newDirLock(filepath.Join(dir, lockFileName), cfg.LockRetryDelay),
		logger: logger.With("component", "file_queue", "queue_dir", dir),
		now:    time.Now,
	}, nil
}

// Dir returns the absolute queue directory.
func (q *FileQueue) Dir() string {
	return q.dir
}

// withLock runs fn inside the queue's critical section.
func (q *FileQueue) withLock(ctx context.Context, op string, fn func() error) error {
	release, err := q.lock.acquire(ctx, q.cfg.LockTimeout)
	if err != nil {
		q.logger.WarnContext(ctx, "Could not acquire queue lock", "operation", op, "error", err)
		return err
	}
	defer func() {
		if relErr := release(); relErr != nil {
			q.logger.ErrorContext(ctx, "Error releasing queue lock", "operation", op, "error", relErr)
		}
	}()
	return fn()
}

// Enqueue writes a new pending job and returns its id.
func (q *FileQueue) Enqueue(ctx context.Context, description string, groupID int, restrictedDay *bool) (string, error) {
	job, err := domain.NewAlarmJob(description, groupID, restrictedDay, q.now())
	if err != nil {
		return "", err
	}

	err = q.withLock(ctx, "enqueue", func() error {
		path := filepath.Join(q.dir, job.ID+recordExt)
		if _, statErr := os.Stat(path); statErr == nil {
			return fmt.Errorf("job id %s already exists", job.ID)
		} else if !errors.Is(statErr, os.ErrNotExist) {
			return fmt.Errorf("check job record %s: %w", job.ID, statErr)
		}
		return writeRecord(q.dir, job, 0)
	})
	if err != nil {
		q.logger.ErrorContext(ctx, "Failed to write queue record", "error", err, "group_id", groupID)
		return "", err
	}

	jobsEnqueuedCounter.Inc()
	q.logger.InfoContext(ctx, "Alarm job queued", "job_id", job.ID, "group_id", groupID, "restricted_day_override", job.OverrideLabel())
	return job.ID, nil
}

// DequeueNext claims the oldest pending job, or a processing job whose claim
// went stale. The claim, with a fresh token, is written before the lock is
// released, so two dispatchers never receive the same job. A dispatcher that
// had its stale claim taken over finds out through RenewClaim.
func (q *FileQueue) DequeueNext(ctx context.Context) (*domain.AlarmJob, error) {
	var claimed *domain.AlarmJob

	err := q.withLock(ctx, "dequeue", func() error {
		jobs, err := q.scan(ctx)
		if err != nil {
			return err
		}

		now := q.now().UTC()
		for _, job := range jobs {
			switch {
			case job.Status == domain.StatusPending:
			case q.isStaleClaim(job, now):
				q.logger.WarnContext(ctx, "Reclaiming job with stale claim", "job_id", job.ID, "claimed_at", job.ClaimedAt)
			default:
				continue
			}

			next := *job
			next.Status = domain.StatusProcessing
			next.ClaimedAt = &now
			next.ClaimToken = uuid.NewString()
			next.Version = job.Version + 1
			if err := writeRecord(q.dir, &next, job.Version); err != nil {
				return fmt.Errorf("claim job %s: %w", job.ID, err)
			}
			jobTransitionsCounter.WithLabelValues(string(domain.StatusProcessing)).Inc()
			claimed = &next
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (q *FileQueue) isStaleClaim(job *domain.AlarmJob, now time.Time) bool {
	if job.Status != domain.StatusProcessing || q.cfg.StaleClaimAfter <= 0 || job.ClaimedAt == nil {
		return false
	}
	return now.Sub(*job.ClaimedAt) >= q.cfg.StaleClaimAfter
}

// RenewClaim moves the claim time of a processing job forward, keeping it from
// going stale while its owner is still sending.
func (q *FileQueue) RenewClaim(ctx context.Context, id, token string) error {
	name, err := recordName(id)
	if err != nil {
		return err
	}

	return q.withLock(ctx, "renew_claim", func() error {
		job, err := readRecord(filepath.Join(q.dir, name))
		if err != nil {
			return err
		}
		if job.Status != domain.StatusProcessing || token == "" || job.ClaimToken != token {
			q.logger.WarnContext(ctx, "Job claim no longer held", "job_id", id, "status", job.Status)
			return fmt.Errorf("%w: job %s is %s", domain.ErrClaimLost, id, job.Status)
		}

		read := job.Version
		now := q.now().UTC()
		job.ClaimedAt = &now
		job.Version = read + 1
		return writeRecord(q.dir, job, read)
	})
}

// MarkCompleted moves a job to completed.
func (q *FileQueue) MarkCompleted(ctx context.Context, id string) error {
	return q.transition(ctx, id, domain.StatusCompleted, func(job *domain.AlarmJob, now time.Time) {
		job.CompletedAt = &now
		job.Error = nil
	})
}

// MarkFailed moves a job to failed and records the reason.
func (q *FileQueue) MarkFailed(ctx context.Context, id string, errorText string) error {
	return q.transition(ctx, id, domain.StatusFailed, func(job *domain.AlarmJob, now time.Time) {
		job.FailedAt = &now
		job.Error = &errorText
	})
}

func (q *FileQueue) transition(ctx context.Context, id string, to domain.JobStatus, apply func(*domain.AlarmJob, time.Time)) error {
	name, err := recordName(id)
	if err != nil {
		return err
	}

	err = q.withLock(ctx, "mark_"+string(to), func() error {
		job, err := readRecord(filepath.Join(q.dir, name))
		if err != nil {
			return err
		}
		if !domain.CanTransition(job.Status, to) {
			return fmt.Errorf("%w: job %s is %s, cannot become %s", domain.ErrInvalidTransition, id, job.Status, to)
		}

		read := job.Version
		job.Status = to
		job.ClaimToken = ""
		job.Version = read + 1
		apply(job, q.now().UTC())
		return writeRecord(q.dir, job, read)
	})
	if err != nil {
		q.logger.ErrorContext(ctx, "Error updating job status", "error", err, "job_id", id, "new_status", to)
		return err
	}

	jobTransitionsCounter.WithLabelValues(string(to)).Inc()
	q.logger.InfoContext(ctx, "Job status updated", "job_id", id, "new_status", to)
	return nil
}

// Get reads one job. Published records are replaced atomically, so no lock is taken.
func (q *FileQueue) Get(ctx context.Context, id string) (*domain.AlarmJob, error) {
	name, err := recordName(id)
	if err != nil {
		return nil, err
	}
	return readRecord(filepath.Join(q.dir, name))
}

// List returns jobs oldest first, optionally filtered by status. Corrupt
// records are skipped.
func (q *FileQueue) List(ctx context.Context, status domain.JobStatus) ([]*domain.AlarmJob, error) {
	jobs, err := q.scan(ctx)
	if err != nil {
		return nil, err
	}
	if status == "" {
		return jobs, nil
	}

	filtered := make([]*domain.AlarmJob, 0, len(jobs))
	for _, job := range jobs {
		if job.Status == status {
			filtered = append(filtered, job)
		}
	}
	return filtered, nil
}

// scan reads every record in the directory, oldest first. A record that cannot
// be read or decoded is logged and skipped so it never blocks the others.
func (q *FileQueue) scan(ctx context.Context) ([]*domain.AlarmJob, error) {
	entries, err := os.ReadDir(q.dir)
	if err != nil {
		return nil, fmt.Errorf("list queue store %s: %w", q.dir, err)
	}

	jobs := make([]*domain.AlarmJob, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !isRecordName(entry.Name()) {
			continue
		}
		job, err := readRecord(filepath.Join(q.dir, entry.Name()))
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			corruptRecordsCounter.Inc()
			q.logger.WarnContext(ctx, "Skipping unreadable job record", "file", entry.Name(), "error", err)
			continue
		}
		jobs = append(jobs, job)
	}

	sort.Slice(jobs, func(i, k int) bool { return jobs[i].Before(jobs[k]) })
	return jobs, nil
}
