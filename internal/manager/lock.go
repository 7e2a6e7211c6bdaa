package manager

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/flock"

	"procqueue/internal/config"
)

// ErrLocked is returned when another manager already serves an overlapping scope.
var ErrLocked = errors.New("another procqueue manager is already running for this queue")

// ScopeLock guards the queues one manager may lease from and sweep.
//
// A per-queue manager holds the all-queues lock shared and its own queue lock
// exclusively; an all-queues manager holds the all-queues lock exclusively.
// Two managers therefore never run on overlapping queues, and an all-queues
// manager never coexists with any per-queue manager.
type ScopeLock struct {
	locks []*flock.Flock
}

// Lock takes the scope lock for queueName without blocking. An empty name
// means every queue. ErrLocked reports an overlapping manager.
func Lock(cfg *config.Config, queueName string) (*ScopeLock, error) {
	queueName = strings.TrimSpace(queueName)
	all := flock.New(cfg.LockPath(""))
	if queueName == "" {
		if err := try(all.TryLock, all.Path()); err != nil {
			return nil, err
		}
		return &ScopeLock{locks: []*flock.Flock{all}}, nil
	}

	if err := try(all.TryRLock, all.Path()); err != nil {
		return nil, err
	}
	own := flock.New(cfg.LockPath(queueName))
	if err := try(own.TryLock, own.Path()); err != nil {
		_ = all.Unlock()
		return nil, err
	}
	return &ScopeLock{locks: []*flock.Flock{own, all}}, nil
}

// Probe reports whether a manager currently holds a scope overlapping
// queueName.
func Probe(cfg *config.Config, queueName string) (bool, error) {
	lock, err := Lock(cfg, queueName)
	if errors.Is(err, ErrLocked) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, lock.Unlock()
}

// Unlock releases every lock file held. Calling it again is a no-op.
func (l *ScopeLock) Unlock() error {
	var errs []error
	for _, lock := range l.locks {
		if err := lock.Unlock(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func try(take func() (bool, error), path string) error {
	ok, err := take()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", path, err)
	}
	if !ok {
		return fmt.Errorf("%w (%s)", ErrLocked, path)
	}
	return nil
}
