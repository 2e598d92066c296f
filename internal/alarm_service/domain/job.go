package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle status of an alarm job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing" // Claimed by a dispatcher
	StatusCompleted  JobStatus = "completed"  // Every recipient was notified and audited
	StatusFailed     JobStatus = "failed"     // At least one recipient failed; never retried
)

// IsTerminal reports whether no further transition is possible from s.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

var allowedTransitions = map[JobStatus][]JobStatus{
	StatusPending:    {StatusProcessing, StatusCompleted, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
}

// CanTransition reports whether the lifecycle allows moving from one status to another.
func CanTransition(from, to JobStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AlarmJob is one alarm notification request tracked through the queue.
type AlarmJob struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	GroupID     int       `json:"group_id"`
	CreatedAt   time.Time `json:"created_at"`
	// RestrictedDay overrides the calendar lookup when set.
	RestrictedDay *bool      `json:"restricted_day,omitempty"`
	Status        JobStatus  `json:"status"`
	Error         *string    `json:"error,omitempty"`
	ClaimedAt     *time.Time `json:"claimed_at,omitempty"`
	// ClaimToken identifies the dispatcher holding a processing job.
	ClaimToken  string     `json:"claim_token,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`
	Version     int64      `json:"version"`
}

// NewAlarmJob creates a pending AlarmJob with a time-ordered id.
func NewAlarmJob(description string, groupID int, restrictedDay *bool, now time.Time) (*AlarmJob, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, fmt.Errorf("%w: description is required", ErrInvalidJob)
	}
	if groupID <= 0 {
		return nil, fmt.Errorf("%w: group id must be positive, got %d", ErrInvalidJob, groupID)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate job id: %w", err)
	}

	var override *bool
	if restrictedDay != nil {
		v := *restrictedDay
		override = &v
	}

	return &AlarmJob{
		ID:            id.String(),
		Description:   description,
		GroupID:       groupID,
		CreatedAt:     now.UTC(),
		RestrictedDay: override,
		Status:        StatusPending,
		Version:       1,
	}, nil
}

// Validate checks the fields a stored record must carry.
func (j *AlarmJob) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("%w: missing id", ErrCorruptRecord)
	}
	if !j.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrCorruptRecord, j.Status)
	}
	if j.CreatedAt.IsZero() {
		return fmt.Errorf("%w: missing created_at", ErrCorruptRecord)
	}
	return nil
}

// OverrideLabel renders the restricted-day override for logs.
func (j *AlarmJob) OverrideLabel() string {
	if j.RestrictedDay == nil {
		return "unset"
	}
	return strconv.FormatBool(*j.RestrictedDay)
}

// Before orders jobs oldest first, ties broken by id.
func (j *AlarmJob) Before(other *AlarmJob) bool {
	if !j.CreatedAt.Equal(other.CreatedAt) {
		return j.CreatedAt.Before(other.CreatedAt)
	}
	return j.ID < other.ID
}
