package main

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/fieldops-backend/internal/bootstrap"
	"github.com/angelmondragon/fieldops-backend/internal/consumers/fieldevents"
	"github.com/angelmondragon/fieldops-backend/pkg/bigquery"
	"github.com/angelmondragon/fieldops-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/fieldops-backend/pkg/pubsub"
)

func main() {
	proc := bootstrap.Start("analytics-worker")
	cfg := proc.Config
	ctx := context.Background()

	redisClient := proc.Redis(ctx)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, proc.Logger, pubsub.CheckSubscription)
	proc.Must("pubsub", err)
	proc.OnClose("pubsub", pubsubClient.Close)

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, proc.Logger)
	proc.Must("bigquery", err)
	proc.OnClose("bigquery", bqClient.Close)

	subscription := pubsubClient.FieldEventsSubscription()
	if subscription == nil {
		proc.Must("field events subscription", errors.New("subscription not configured"))
	}

	// Redelivered messages are dropped once their event id has been seen.
	dedupe, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	proc.Must("idempotency manager", err)

	consumer, err := fieldevents.NewConsumer(bqClient, bqClient.FieldEventsTable(), dedupe, proc.Logger)
	proc.Must("field events consumer", err)

	subscriber, err := fieldevents.NewSubscriber(subscription, consumer, proc.Logger)
	proc.Must("field events subscriber", err)

	proc.Run(subscriber.Run, proc.MetricsTask(prometheus.DefaultGatherer))
}
