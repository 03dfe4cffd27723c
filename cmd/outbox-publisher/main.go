package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/fieldops-backend/internal/bootstrap"
	"github.com/angelmondragon/fieldops-backend/internal/relay"
	"github.com/angelmondragon/fieldops-backend/pkg/metrics"
	"github.com/angelmondragon/fieldops-backend/pkg/outbox"
	"github.com/angelmondragon/fieldops-backend/pkg/outbox/registry"
	"github.com/angelmondragon/fieldops-backend/pkg/pubsub"
)

func main() {
	proc := bootstrap.Start("outbox-publisher")
	cfg := proc.Config
	ctx := context.Background()

	dbClient := proc.Database(ctx)

	// The relay only publishes, so the topic is the resource worth checking.
	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, proc.Logger, pubsub.CheckTopic)
	proc.Must("pubsub", err)
	proc.OnClose("pubsub", pubsubClient.Close)

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	proc.Must("event registry", err)

	topics := relay.NewGCPTopics(pubsubClient)
	proc.OnClose("topics", func() error { topics.Stop(); return nil })

	outboxRelay, err := relay.New(relay.Params{
		Config:     cfg.Outbox,
		Logger:     proc.Logger,
		DB:         dbClient,
		Broker:     pubsubClient,
		Repository: outbox.NewRepository(dbClient.DB()),
		DLQ:        outbox.NewDLQRepository(dbClient.DB()),
		Registry:   eventRegistry,
		Topics:     topics,
		Metrics:    metrics.NewRelayMetrics(prometheus.DefaultRegisterer),
	})
	proc.Must("outbox relay", err)

	proc.Run(outboxRelay.Run, proc.MetricsTask(prometheus.DefaultGatherer))
}
