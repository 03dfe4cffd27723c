// Package locks provides the per-representative and per-lead mutual
// exclusion used around field state transitions.
package locks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/fieldops-backend/pkg/errors"
)

const (
	ScopeRepresentative = "field:rep"
	ScopeLead           = "field:lead"

	defaultTTL   = 15 * time.Second
	defaultWait  = 2 * time.Second
	pollInterval = 50 * time.Millisecond
)

// Release frees a held lock.
type Release func(ctx context.Context) error

// Locker grants exclusive ownership of (scope, id) until released or the
// lock TTL elapses.
type Locker interface {
	Acquire(ctx context.Context, scope, id string) (Release, error)
}

type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ReleaseIfOwner(ctx context.Context, key, owner string) (bool, error)
	LockKey(scope, id string) string
}

// RedisLocker implements Locker with SETNX plus an owner token.
type RedisLocker struct {
	store redisStore
	ttl   time.Duration
	wait  time.Duration
}

// NewRedisLocker builds a Redis-backed locker. Acquire polls for up to wait
// before reporting the resource busy.
func NewRedisLocker(store redisStore, ttl, wait time.Duration) (*RedisLocker, error) {
	if store == nil {
		return nil, fmt.Errorf("redis store required for locker")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if wait < 0 {
		wait = defaultWait
	}
	return &RedisLocker{store: store, ttl: ttl, wait: wait}, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, scope, id string) (Release, error) {
	key := l.store.LockKey(scope, id)
	owner := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.store.SetNX(ctx, key, owner, l.ttl)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire lock")
		}
		if ok {
			return func(ctx context.Context) error {
				if _, err := l.store.ReleaseIfOwner(ctx, key, owner); err != nil {
					return fmt.Errorf("release lock %s: %w", key, err)
				}
				return nil
			}, nil
		}
		if !time.Now().Before(deadline) {
			return nil, busy(scope, id)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// LocalLocker is an in-process Locker for single-instance and SQLite runs.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
	wait  time.Duration
}

func NewLocalLocker(wait time.Duration) *LocalLocker {
	if wait < 0 {
		wait = defaultWait
	}
	return &LocalLocker{slots: make(map[string]chan struct{}), wait: wait}
}

func (l *LocalLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

func (l *LocalLocker) Acquire(ctx context.Context, scope, id string) (Release, error) {
	ch := l.slot(scope + ":" + id)

	var once sync.Once
	release := func(context.Context) error {
		once.Do(func() { <-ch })
		return nil
	}

	select {
	case ch <- struct{}{}:
		return release, nil
	default:
	}

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, busy(scope, id)
	}
	return release, nil
}

func busy(scope, id string) error {
	return pkgerrors.StateConflict(pkgerrors.ReasonRequestInProgress, "another request is in progress", map[string]any{
		"scope": scope,
		"id":    id,
	})
}

// WithLock runs fn while holding (scope, id).
func WithLock(ctx context.Context, locker Locker, scope, id string, fn func() error) error {
	release, err := locker.Acquire(ctx, scope, id)
	if err != nil {
		return err
	}
	defer func() {
		// on release failure the key expires with its TTL
		_ = release(context.WithoutCancel(ctx))
	}()
	return fn()
}

// IsBusy reports whether err is the contention error returned by Acquire
// when the wait budget ran out.
func IsBusy(err error) bool {
	return pkgerrors.ReasonOf(err) == pkgerrors.ReasonRequestInProgress
}
