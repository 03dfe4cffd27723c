package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/fieldops-backend/pkg/db"
	"github.com/angelmondragon/fieldops-backend/pkg/metrics"
	"github.com/angelmondragon/fieldops-backend/pkg/migrate"
	"github.com/angelmondragon/fieldops-backend/pkg/redis"
)

// Database opens the primary database and applies embedded migrations in
// dev when auto-migrate is on.
func (p *Process) Database(ctx context.Context) *db.Client {
	client, err := db.New(ctx, p.Config.DB, p.Config.FeatureFlags.UseSQLite, p.Logger)
	p.Must("database", err)
	p.OnClose("database", client.Close)

	p.Must("dev migrations", migrate.MaybeRunDev(ctx, p.Config, p.Logger, client))
	return client
}

func (p *Process) Redis(ctx context.Context) *redis.Client {
	client, err := redis.New(ctx, p.Config.Redis, p.Logger)
	p.Must("redis", err)
	p.OnClose("redis", client.Close)
	return client
}

// MetricsTask serves /metrics on the configured address until ctx ends.
func (p *Process) MetricsTask(gatherer prometheus.Gatherer) Task {
	return func(ctx context.Context) error {
		return metrics.Serve(ctx, p.Config.Service.MetricsAddr, gatherer, p.Logger)
	}
}

// HTTPTask runs server until ctx ends, then drains in-flight requests for up
// to grace.
func HTTPTask(server *http.Server, grace time.Duration) Task {
	return func(ctx context.Context) error {
		serveErr := make(chan error, 1)
		go func() { serveErr <- server.ListenAndServe() }()

		select {
		case err := <-serveErr:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return ctx.Err()
	}
}
