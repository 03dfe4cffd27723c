package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/fieldops-backend/pkg/logger"
)

const (
	outboxRetention     = 30 * 24 * time.Hour
	deadLetterRetention = 90 * 24 * time.Hour
)

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	Repository outboxRetentionRepo
	// DeadLetters is optional; without it only published rows are purged.
	DeadLetters         deadLetterRetentionRepo
	Retention           time.Duration
	DeadLetterRetention time.Duration
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type deadLetterRetentionRepo interface {
	DeleteFailedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NewOutboxRetentionJob purges published outbox rows and, when configured,
// dead letters past their own longer window.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:         params.Logger,
		events:       params.Repository,
		deadLetters:  params.DeadLetters,
		retention:    orDefault(params.Retention, outboxRetention),
		dlqRetention: orDefault(params.DeadLetterRetention, deadLetterRetention),
		now:          time.Now,
	}
	if job.dlqRetention < job.retention {
		job.dlqRetention = job.retention
	}
	return job, nil
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

type outboxRetentionJob struct {
	logg         *logger.Logger
	events       outboxRetentionRepo
	deadLetters  deadLetterRetentionRepo
	retention    time.Duration
	dlqRetention time.Duration
	now          func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

// Run attempts both purges even when the first fails.
func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	fields := map[string]any{"retention": j.retention.String()}

	var errs error
	published, err := j.events.DeletePublishedBefore(ctx, now.Add(-j.retention))
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("purge published events: %w", err))
	}
	fields["published_deleted"] = published

	if j.deadLetters != nil {
		dead, err := j.deadLetters.DeleteFailedBefore(ctx, now.Add(-j.dlqRetention))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("purge dead letters: %w", err))
		}
		fields["dead_letters_deleted"] = dead
		fields["dead_letter_retention"] = j.dlqRetention.String()
	}

	if errs != nil {
		return errs
	}
	j.logg.Info(j.logg.WithFields(ctx, fields), "outbox retention cleanup complete")
	return nil
}
