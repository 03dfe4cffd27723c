package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/fieldops-backend/pkg/locks"
)

// leaseStore mimics the redis calls the locker makes.
type leaseStore struct {
	values   map[string]string
	setErr   error
	released int
}

func (m *leaseStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if m.setErr != nil {
		return false, m.setErr
	}
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *leaseStore) ReleaseIfOwner(_ context.Context, key, owner string) (bool, error) {
	m.released++
	if m.values[key] != owner {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func (m *leaseStore) LockKey(scope, id string) string { return "fo:lock:" + scope + ":" + id }

func newLeaderLock(t *testing.T, store *leaseStore) *LeaderLock {
	t.Helper()
	locker, err := locks.NewRedisLocker(store, time.Minute, 0)
	require.NoError(t, err)
	lock, err := NewLeaderLock(locker, "cron-worker:test")
	require.NoError(t, err)
	return lock
}

func TestLeaderLockIsExclusive(t *testing.T) {
	store := &leaseStore{values: map[string]string{}}
	first := newLeaderLock(t, store)
	second := newLeaderLock(t, store)
	ctx := context.Background()

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, store.values, "fo:lock:cron:cron-worker:test")

	ok, err = second.Acquire(ctx)
	require.NoError(t, err, "contention is not an error")
	assert.False(t, ok)

	require.NoError(t, first.Release(ctx))
	assert.Empty(t, store.values)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLeaderLockReleaseWhenNotHeld(t *testing.T) {
	store := &leaseStore{values: map[string]string{}}
	lock := newLeaderLock(t, store)

	require.NoError(t, lock.Release(context.Background()))
	assert.Zero(t, store.released)
}

func TestLeaderLockSurfacesStoreErrors(t *testing.T) {
	store := &leaseStore{values: map[string]string{}, setErr: errors.New("redis down")}
	_, err := newLeaderLock(t, store).Acquire(context.Background())
	assert.ErrorContains(t, err, "redis down")
}

func TestLeaderLockOverLocalLocker(t *testing.T) {
	locker := locks.NewLocalLocker(0)
	a, err := NewLeaderLock(locker, "cron-worker:local")
	require.NoError(t, err)
	b, err := NewLeaderLock(locker, "cron-worker:local")
	require.NoError(t, err)

	ok, err := a.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = b.Acquire(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewLeaderLockValidates(t *testing.T) {
	_, err := NewLeaderLock(nil, "x")
	assert.Error(t, err)
	_, err = NewLeaderLock(locks.NewLocalLocker(0), "")
	assert.Error(t, err)
}
