package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gofrs/flock"
)

// ErrLockTimeout is returned when another process holds the history lock
// for longer than the configured timeout
var ErrLockTimeout = errors.New("timed out waiting for history lock")

var errLockBusy = errors.New("history lock busy")

const defaultLockTimeout = 5 * time.Second

// fileLock is an advisory lock on <history>.lock shared by every process
// using the same history file
type fileLock struct {
	flock   *flock.Flock
	timeout time.Duration
}

func newFileLock(path string, timeout time.Duration) *fileLock {
	if timeout <= 0 {
		timeout = defaultLockTimeout
	}
	return &fileLock{flock: flock.New(path), timeout: timeout}
}

func (l *fileLock) newBackoff() backoff.BackOff {
	// BackOff implementations are stateful; always return a fresh instance.
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxInterval = 250 * time.Millisecond
	bo.MaxElapsedTime = l.timeout
	return bo
}

// Lock acquires the exclusive lock, retrying with exponential backoff
func (l *fileLock) Lock(ctx context.Context) error {
	err := backoff.Retry(func() error {
		locked, err := l.flock.TryLock()
		if err != nil {
			return backoff.Permanent(err)
		}
		if !locked {
			return errLockBusy
		}
		return nil
	}, backoff.WithContext(l.newBackoff(), ctx))

	switch {
	case err == nil:
		return nil
	case errors.Is(err, errLockBusy):
		return fmt.Errorf("%w: %s", ErrLockTimeout, l.flock.Path())
	default:
		return fmt.Errorf("failed to lock %s: %w", l.flock.Path(), err)
	}
}

// Unlock releases the lock
func (l *fileLock) Unlock() error {
	return l.flock.Unlock()
}
