package idempotency

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	value string
	ttl   time.Duration
}

// memStore keeps markers in a map and records the ttl of each write.
type memStore struct {
	data   map[string]entry
	setErr error
	delErr error
}

func newMemStore() *memStore { return &memStore{data: map[string]entry{}} }

func (s *memStore) Get(_ context.Context, key string) (string, error) {
	e, ok := s.data[key]
	if !ok {
		return "", redislib.Nil
	}
	return e.value, nil
}

func (s *memStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if s.setErr != nil {
		return false, s.setErr
	}
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = entry{value: value.(string), ttl: ttl}
	return true, nil
}

func (s *memStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	s.data[key] = entry{value: value.(string), ttl: ttl}
	return nil
}

func (s *memStore) Del(_ context.Context, keys ...string) error {
	if s.delErr != nil {
		return s.delErr
	}
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

func (s *memStore) IdempotencyKey(scope, id string) string {
	return "fo:idempotency:" + scope + ":" + id
}

func newManager(t *testing.T, store *memStore) *Manager {
	t.Helper()
	m, err := NewManager(store, 7*24*time.Hour)
	require.NoError(t, err)
	return m
}

func TestOnceRunsFirstDeliveryAndMarksDone(t *testing.T) {
	store := newMemStore()
	m := newManager(t, store)
	id := uuid.New()

	calls := 0
	ran, err := m.Once(context.Background(), "field-events-analytics", id, func(context.Context) error {
		calls++
		key := "fo:idempotency:evt:field-events-analytics:" + id.String()
		assert.Equal(t, entry{value: markerPending, ttl: DefaultClaimTTL}, store.data[key], "claimed while running")
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 1, calls)

	key := "fo:idempotency:evt:field-events-analytics:" + id.String()
	assert.Equal(t, entry{value: markerDone, ttl: 7 * 24 * time.Hour}, store.data[key])
}

func TestOnceSkipsFinishedEvent(t *testing.T) {
	m := newManager(t, newMemStore())
	id := uuid.New()
	noop := func(context.Context) error { return nil }

	_, err := m.Once(context.Background(), "c", id, noop)
	require.NoError(t, err)

	ran, err := m.Once(context.Background(), "c", id, func(context.Context) error {
		t.Fatal("handler ran twice")
		return nil
	})
	require.NoError(t, err)
	assert.False(t, ran)
}

func TestOnceScopesByConsumer(t *testing.T) {
	m := newManager(t, newMemStore())
	id := uuid.New()
	noop := func(context.Context) error { return nil }

	ran, err := m.Once(context.Background(), "analytics", id, noop)
	require.NoError(t, err)
	assert.True(t, ran)
	ran, err = m.Once(context.Background(), "notifications", id, noop)
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestOnceReportsInFlight(t *testing.T) {
	store := newMemStore()
	m := newManager(t, store)
	id := uuid.New()

	_, err := m.Once(context.Background(), "c", id, func(ctx context.Context) error {
		ran, err := m.Once(ctx, "c", id, func(context.Context) error { return nil })
		assert.False(t, ran)
		assert.ErrorIs(t, err, ErrInFlight)
		return nil
	})
	require.NoError(t, err)
}

func TestOnceReleasesClaimOnFailure(t *testing.T) {
	store := newMemStore()
	m := newManager(t, store)
	id := uuid.New()
	boom := errors.New("bigquery down")

	ran, err := m.Once(context.Background(), "c", id, func(context.Context) error { return boom })
	assert.False(t, ran)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, store.data)

	ran, err = m.Once(context.Background(), "c", id, func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestOnceJoinsReleaseFailure(t *testing.T) {
	store := newMemStore()
	store.delErr = errors.New("redis gone")
	m := newManager(t, store)
	boom := errors.New("handler failed")

	_, err := m.Once(context.Background(), "c", uuid.New(), func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "redis gone")
}

func TestOnceSurfacesClaimErrors(t *testing.T) {
	store := newMemStore()
	store.setErr = errors.New("redis down")
	m := newManager(t, store)

	_, err := m.Once(context.Background(), "c", uuid.New(), func(context.Context) error {
		t.Fatal("handler must not run without a claim")
		return nil
	})
	assert.ErrorContains(t, err, "redis down")
}

func TestOnceValidatesInput(t *testing.T) {
	m := newManager(t, newMemStore())
	noop := func(context.Context) error { return nil }

	_, err := m.Once(context.Background(), "", uuid.New(), noop)
	assert.Error(t, err)
	_, err = m.Once(context.Background(), "c", uuid.Nil, noop)
	assert.Error(t, err)
}

func TestNewManagerValidates(t *testing.T) {
	_, err := NewManager(nil, time.Hour)
	assert.Error(t, err)
	_, err = NewManager(newMemStore(), 0)
	assert.Error(t, err)

	m, err := NewManager(newMemStore(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, m.claimTTL, "claim never outlives the done marker")
}

func ExampleManager_Once() {
	m, _ := NewManager(newMemStore(), 7*24*time.Hour)
	id := uuid.MustParse("f47ac10b-58cc-4372-a567-0e02b2c3d479")
	ingest := func(context.Context) error { return nil }

	for range 2 {
		ran, _ := m.Once(context.Background(), "field-events-analytics", id, ingest)
		fmt.Println(ran)
	}
	// Output:
	// true
	// false
}
