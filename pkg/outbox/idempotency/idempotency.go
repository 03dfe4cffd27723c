// Package idempotency makes at-least-once event delivery effectively-once for
// a consumer. Each event id moves through a short claim while a handler runs
// and a long-lived done marker once it succeeded.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/fieldops-backend/pkg/redis"
)

const (
	markerPending = "pending"
	markerDone    = "done"

	// DefaultClaimTTL bounds how long a crashed handler blocks redelivery.
	DefaultClaimTTL = 5 * time.Minute
)

// ErrInFlight means another delivery of the same event is being handled
// right now. Callers should nack so the broker retries later.
var ErrInFlight = errors.New("event is being processed by another delivery")

// Manager tracks processed event ids per consumer under
// fo:idempotency:evt:<consumer>:<event_id>.
type Manager struct {
	store    redis.MarkerStore
	ttl      time.Duration
	claimTTL time.Duration
}

// NewManager keeps done markers for ttl. Pending claims expire after
// DefaultClaimTTL, or ttl if that is shorter.
func NewManager(store redis.MarkerStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	return &Manager{store: store, ttl: ttl, claimTTL: min(DefaultClaimTTL, ttl)}, nil
}

// Once runs fn the first time consumer sees eventID and reports whether it
// ran. A duplicate of a finished event returns (false, nil); a duplicate of
// one still running returns ErrInFlight. When fn fails the claim is dropped
// so a redelivery can retry.
func (m *Manager) Once(ctx context.Context, consumer string, eventID uuid.UUID, fn func(context.Context) error) (bool, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return false, err
	}

	claimed, err := m.store.SetNX(ctx, key, markerPending, m.claimTTL)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", eventID, err)
	}
	if !claimed {
		return false, m.duplicate(ctx, key)
	}

	// Bookkeeping must survive the caller's context ending mid-handler.
	storeCtx := context.WithoutCancel(ctx)
	if err := fn(ctx); err != nil {
		if delErr := m.store.Del(storeCtx, key); delErr != nil {
			return false, errors.Join(err, fmt.Errorf("release claim: %w", delErr))
		}
		return false, err
	}
	if err := m.store.Set(storeCtx, key, markerDone, m.ttl); err != nil {
		// fn already succeeded; the claim still blocks duplicates until it expires.
		return true, fmt.Errorf("mark %s done: %w", eventID, err)
	}
	return true, nil
}

func (m *Manager) duplicate(ctx context.Context, key string) error {
	state, err := m.store.Get(ctx, key)
	switch {
	case errors.Is(err, redislib.Nil):
		// Claim expired or was released between SETNX and GET.
		return ErrInFlight
	case err != nil:
		return fmt.Errorf("read marker: %w", err)
	case state == markerPending:
		return ErrInFlight
	}
	return nil
}

func (m *Manager) key(consumer string, eventID uuid.UUID) (string, error) {
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return m.store.IdempotencyKey("evt:"+consumer, eventID.String()), nil
}
