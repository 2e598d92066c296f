package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"

	"github.com/gorelikserver/scada-sms/internal/alarm_service/domain"
)

// dirLock serializes access to the queue directory across processes (flock on
// the lock file) and across goroutines of this process (sem). A single
// flock.Flock reports an already held lock as acquired, so the semaphore is
// what keeps two goroutines out of the critical section at the same time.
type dirLock struct {
	sem        chan struct{}
	fl         *flock.Flock
	retryDelay time.Duration
}

func newDirLock(path string, retryDelay time.Duration) *dirLock {
	return &dirLock{
		sem:        make(chan struct{}, 1),
		fl:         flock.New(path),
		retryDelay: retryDelay,
	}
}

// acquire waits at most timeout for the lock. The returned release func must be
// called exactly once.
func (l *dirLock) acquire(ctx context.Context, timeout time.Duration) (func() error, error) {
	timer := newLockWaitTimer()
	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case l.sem <- struct{}{}:
	case <-lockCtx.Done():
		return nil, contentionError(ctx, lockCtx.Err())
	}

	ok, err := l.fl.TryLockContext(lockCtx, l.retryDelay)
	if err != nil || !ok {
		<-l.sem
		if err == nil {
			err = lockCtx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, contentionError(ctx, err)
		}
		return nil, fmt.Errorf("open queue lock %s: %w", l.fl.Path(), err)
	}
	timer.ObserveDuration()

	return func() error {
		defer func() { <-l.sem }()
		if err := l.fl.Unlock(); err != nil {
			return fmt.Errorf("release queue lock %s: %w", l.fl.Path(), err)
		}
		return nil
	}, nil
}

func contentionError(parent context.Context, err error) error {
	// A cancelled caller is not contention.
	if parent.Err() != nil {
		return parent.Err()
	}
	lockContentionCounter.Inc()
	return fmt.Errorf("%w: %v", domain.ErrLockContention, err)
}
