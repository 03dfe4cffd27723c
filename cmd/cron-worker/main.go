package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/fieldops-backend/internal/bootstrap"
	"github.com/angelmondragon/fieldops-backend/internal/cron"
	"github.com/angelmondragon/fieldops-backend/internal/visits"
	"github.com/angelmondragon/fieldops-backend/pkg/locks"
	"github.com/angelmondragon/fieldops-backend/pkg/metrics"
	"github.com/angelmondragon/fieldops-backend/pkg/outbox"
)

func main() {
	proc := bootstrap.Start("cron-worker")
	cfg := proc.Config
	ctx := context.Background()

	dbClient := proc.Database(ctx)
	redisClient := proc.Redis(ctx)

	var err error
	var locker locks.Locker = locks.NewLocalLocker(0)
	if !cfg.FeatureFlags.UseLocalLocks {
		// Zero wait: a cycle held by another worker is skipped, not queued.
		locker, err = locks.NewRedisLocker(redisClient, cfg.Cron.LockTTL, 0)
		proc.Must("cron locker", err)
	}
	lock, err := cron.NewLeaderLock(locker, leaderName(cfg.App.Env))
	proc.Must("cron lock", err)

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:              proc.Logger,
		Repository:          outbox.NewRepository(dbClient.DB()),
		DeadLetters:         outbox.NewDLQRepository(dbClient.DB()),
		Retention:           cfg.Outbox.Retention,
		DeadLetterRetention: cfg.Outbox.DeadLetterRetention,
	})
	proc.Must("outbox retention job", err)

	staleVisitJob, err := cron.NewStaleVisitJob(cron.StaleVisitJobParams{
		Logger:     proc.Logger,
		Repository: visits.NewRepository(dbClient.DB()),
		Gauge:      metrics.NewFieldMetrics(prometheus.DefaultRegisterer),
		After:      cfg.Field.StaleVisitAfter,
	})
	proc.Must("stale visit job", err)

	registry := cron.NewRegistry(staleVisitJob)
	registry.RegisterEvery(retentionJob, cfg.Cron.RetentionEvery)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     proc.Logger,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	proc.Must("cron service", err)

	proc.Run(service.Run, proc.MetricsTask(prometheus.DefaultGatherer))
}

// leaderName keeps environments sharing one redis from blocking each other.
func leaderName(env string) string {
	if env == "" {
		env = "local"
	}
	return "cron-worker:" + env
}
