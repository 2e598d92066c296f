package domain

import "errors"

var (
	// ErrNotFound indicates that a requested resource was not found.
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidJob indicates that an alarm job could not be built from the given input.
	ErrInvalidJob = errors.New("invalid alarm job")
	// ErrLockContention indicates the queue lock could not be acquired in time.
	// The whole call may be retried.
	ErrLockContention = errors.New("queue lock not acquired")
	// ErrInvalidTransition indicates a status change that the job lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid job status transition")
	// ErrVersionConflict indicates the stored record changed after it was read.
	ErrVersionConflict = errors.New("job record version conflict")
	// ErrClaimLost indicates a processing job is no longer held by the caller's
	// claim: it was reclaimed by another dispatcher or already finalized.
	ErrClaimLost = errors.New("job claim lost")
	// ErrCorruptRecord indicates a queue record that cannot be decoded.
	ErrCorruptRecord = errors.New("corrupt job record")
	// ErrDayNotFound indicates the calendar table has no entry for a date.
	ErrDayNotFound = errors.New("calendar day not found")
	// ErrDispatchInProgress indicates another dispatcher holds the dispatch lease.
	ErrDispatchInProgress = errors.New("dispatch already in progress")
)
