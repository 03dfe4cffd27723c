package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/angelmondragon/fieldops-backend/pkg/locks"
)

const lockScope = "cron"

// Lock gives one worker at a time the right to run a cycle.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// LeaderLock is a Lock over the shared field locker. The locker must be
// built with a zero wait so a held lock skips the cycle instead of queueing.
type LeaderLock struct {
	locker locks.Locker
	name   string

	mu      sync.Mutex
	release locks.Release
}

func NewLeaderLock(locker locks.Locker, name string) (*LeaderLock, error) {
	if locker == nil {
		return nil, errors.New("locker required for cron lock")
	}
	if name == "" {
		return nil, errors.New("cron lock name is required")
	}
	return &LeaderLock{locker: locker, name: name}, nil
}

func (l *LeaderLock) Acquire(ctx context.Context) (bool, error) {
	release, err := l.locker.Acquire(ctx, lockScope, l.name)
	if locks.IsBusy(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("acquire cron lock: %w", err)
	}
	l.mu.Lock()
	l.release = release
	l.mu.Unlock()
	return true, nil
}

// Release is a no-op when the lock is not held. The underlying release is
// owner-checked, so a lease that expired and moved to another worker stays
// with it.
func (l *LeaderLock) Release(ctx context.Context) error {
	l.mu.Lock()
	release := l.release
	l.release = nil
	l.mu.Unlock()
	if release == nil {
		return nil
	}
	if err := release(ctx); err != nil {
		return fmt.Errorf("release cron lock: %w", err)
	}
	return nil
}
