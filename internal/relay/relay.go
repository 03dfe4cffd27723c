// Package relay moves committed outbox rows onto Pub/Sub.
package relay

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fieldops-backend/pkg/config"
	"github.com/angelmondragon/fieldops-backend/pkg/db/models"
	"github.com/angelmondragon/fieldops-backend/pkg/logger"
	"github.com/angelmondragon/fieldops-backend/pkg/metrics"
	"github.com/angelmondragon/fieldops-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPoll           = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

type pinger interface {
	Ping(context.Context) error
}

type txRunner interface {
	pinger
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type resolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// Params wires a Relay.
type Params struct {
	Config     config.OutboxConfig
	Logger     *logger.Logger
	DB         txRunner
	Broker     pinger
	Repository outboxRepository
	DLQ        dlqRepository
	Registry   resolver
	Topics     Topics
	Metrics    *metrics.RelayMetrics
}

// Relay drains unpublished outbox rows in batches. Each batch runs in one
// transaction so row locks taken by the fetch are held until every row in it
// is marked.
type Relay struct {
	logg        *logger.Logger
	db          txRunner
	broker      pinger
	repo        outboxRepository
	dlq         dlqRepository
	registry    resolver
	topics      Topics
	metrics     *metrics.RelayMetrics
	batchSize   int
	maxAttempts int
	poll        time.Duration
	jitter      *rand.Rand
	now         func() time.Time
}

func New(params Params) (*Relay, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.Broker == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.DLQ == nil:
		return nil, errors.New("dlq repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.Topics == nil:
		return nil, errors.New("topic publishers are required")
	}

	batch := params.Config.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	poll := time.Duration(params.Config.PollIntervalMS) * time.Millisecond
	if poll <= 0 {
		poll = defaultPoll
	}
	maxAttempts := params.Config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	return &Relay{
		logg:        params.Logger,
		db:          params.DB,
		broker:      params.Broker,
		repo:        params.Repository,
		dlq:         params.DLQ,
		registry:    params.Registry,
		topics:      params.Topics,
		metrics:     params.Metrics,
		batchSize:   batch,
		maxAttempts: maxAttempts,
		poll:        poll,
		jitter:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:         time.Now,
	}, nil
}

// Run relays batches until ctx is canceled. An empty batch sleeps for the poll
// interval; a failed batch backs off exponentially up to maxBackoff.
func (r *Relay) Run(ctx context.Context) error {
	for name, dep := range map[string]pinger{"database": r.db, "pubsub": r.broker} {
		if err := dep.Ping(ctx); err != nil {
			r.logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}

	backoff := r.poll
	for {
		if err := ctx.Err(); err != nil {
			r.logg.Info(ctx, "outbox relay context canceled")
			return err
		}

		drained, err := r.relayBatch(ctx)
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox relay batch error", err)
			backoff = min(backoff*2, maxBackoff)
			if err := r.sleep(ctx, backoff); err != nil {
				return err
			}
		case drained > 0:
			backoff = r.poll
		default:
			backoff = r.poll
			if err := r.sleep(ctx, r.poll); err != nil {
				return err
			}
		}
	}
}

// relayBatch returns how many rows were examined.
func (r *Relay) relayBatch(ctx context.Context) (int, error) {
	start := r.now()
	defer func() { r.metrics.ObserveBatch(time.Since(start)) }()

	count := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := r.repo.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return err
		}
		count = len(events)
		for _, event := range events {
			if err := r.relayOne(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	return count, err
}

// relayOne only returns an error when bookkeeping fails; delivery failures are
// recorded on the row.
func (r *Relay) relayOne(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	d := r.deliver(ctx, event)
	logCtx := r.logg.WithFields(ctx, d.fields)

	switch d.outcome {
	case metrics.RelayPublished:
		if err := r.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		r.logg.Info(logCtx, "outbox event published")
	case metrics.RelayRetried:
		r.logg.Warn(r.logg.WithField(logCtx, "error", d.err.Error()), "outbox publish failed")
		if err := r.repo.MarkFailedTx(tx, event.ID, d.err); err != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, err)
		}
	case metrics.RelayDeadLettered:
		r.logg.Warn(r.logg.WithField(logCtx, "error", d.err.Error()), "outbox event will not be retried")
		if err := r.dlq.InsertTx(tx, deadLetter(event, d.reason, d.err, r.now())); err != nil {
			return fmt.Errorf("insert dlq %s: %w", event.ID, err)
		}
		if err := r.repo.MarkTerminalTx(tx, event.ID, d.err, r.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", event.ID, err)
		}
	}
	r.metrics.IncDelivery(string(event.EventType), d.outcome)
	return nil
}

func (r *Relay) sleep(ctx context.Context, d time.Duration) error {
	d += time.Duration(r.jitter.Int63n(int64(jitterWindow)))
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
