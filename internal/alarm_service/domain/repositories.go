package domain

import (
	"context"
	"time"
)

// JobQueue defines the durable alarm job queue.
type JobQueue interface {
	Enqueue(ctx context.Context, description string, groupID int, restrictedDay *bool) (string, error)
	// DequeueNext claims the oldest pending job. It returns nil, nil when the queue is drained.
	DequeueNext(ctx context.Context) (*AlarmJob, error)
	// RenewClaim refreshes the claim of a processing job. It returns
	// ErrClaimLost when token no longer owns the job.
	RenewClaim(ctx context.Context, id, token string) error
	MarkCompleted(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, errorText string) error
	Get(ctx context.Context, id string) (*AlarmJob, error)
	// List returns jobs ordered oldest first. An empty status lists every job.
	List(ctx context.Context, status JobStatus) ([]*AlarmJob, error)
}

// RecipientDirectory reads notifiable members of a group.
type RecipientDirectory interface {
	// GetRecipients returns SMS-enabled members of the group. With restrictedOnly
	// set, only members who work on restricted days are returned.
	GetRecipients(ctx context.Context, groupID int, restrictedOnly bool) ([]Recipient, error)
}

// AuditRepository is the append-only delivery audit sink.
type AuditRepository interface {
	Append(ctx context.Context, record *AuditRecord) error
	ListByJob(ctx context.Context, jobID string) ([]*AuditRecord, error)
}

// CalendarRepository stores the precomputed date dimension.
type CalendarRepository interface {
	// GetDay returns ErrDayNotFound when the table has no row for the date.
	GetDay(ctx context.Context, date time.Time) (*CalendarDay, error)
	Count(ctx context.Context) (int64, error)
	InsertDays(ctx context.Context, days []CalendarDay) (int64, error)
}
