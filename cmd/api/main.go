package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/angelmondragon/fieldops-backend/api/controllers"
	"github.com/angelmondragon/fieldops-backend/api/routes"
	"github.com/angelmondragon/fieldops-backend/internal/auth"
	"github.com/angelmondragon/fieldops-backend/internal/bootstrap"
	"github.com/angelmondragon/fieldops-backend/internal/companies"
	"github.com/angelmondragon/fieldops-backend/internal/dealers"
	"github.com/angelmondragon/fieldops-backend/internal/leads"
	"github.com/angelmondragon/fieldops-backend/internal/nearby"
	"github.com/angelmondragon/fieldops-backend/internal/reports"
	"github.com/angelmondragon/fieldops-backend/internal/representatives"
	"github.com/angelmondragon/fieldops-backend/internal/sessions"
	"github.com/angelmondragon/fieldops-backend/internal/territories"
	"github.com/angelmondragon/fieldops-backend/internal/visits"
	"github.com/angelmondragon/fieldops-backend/pkg/auth/session"
	"github.com/angelmondragon/fieldops-backend/pkg/locks"
	"github.com/angelmondragon/fieldops-backend/pkg/maps"
	"github.com/angelmondragon/fieldops-backend/pkg/metrics"
	"github.com/angelmondragon/fieldops-backend/pkg/outbox"
)

const shutdownTimeout = 15 * time.Second

func main() {
	proc := bootstrap.Start("api")
	cfg, logg := proc.Config, proc.Logger
	ctx := context.Background()

	dbClient := proc.Database(ctx)
	redisClient := proc.Redis(ctx)

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	proc.Must("session manager", err)

	var locker locks.Locker
	if cfg.FeatureFlags.UseLocalLocks {
		locker = locks.NewLocalLocker(0)
		logg.Warn(ctx, "using in-process locks; run a single api instance")
	} else {
		locker, err = locks.NewRedisLocker(redisClient, cfg.Field.LockTTL, 0)
		proc.Must("redis locker", err)
	}

	var mapsClient *maps.Client
	if cfg.GoogleMaps.APIKey != "" {
		mapsClient, err = maps.NewClient(
			cfg.GoogleMaps.APIKey,
			maps.WithHTTPClient(&http.Client{Timeout: cfg.Field.PlacesTimeout}),
			maps.WithRateLimiter(rate.NewLimiter(rate.Limit(cfg.Field.PlacesRatePerSecond), cfg.Field.PlacesBurst)),
		)
		proc.Must("places client", err)
	} else {
		logg.Warn(ctx, "google maps api key not set; nearby results are internal only")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	fieldMetrics := metrics.NewFieldMetrics(registry)

	conn := dbClient.DB()
	events := outbox.NewService(outbox.NewRepository(conn), logg)
	companyRepo := companies.NewRepository(conn)
	repRepo := representatives.NewRepository(conn)
	sessionRepo := sessions.NewRepository(conn)
	visitRepo := visits.NewRepository(conn)
	leadRepo := leads.NewRepository(conn)
	dealerRepo := dealers.NewRepository(conn)

	deps := routes.Deps{
		Sessions: sessionManager,
		Redis:    redisClient,
		Pingers: map[string]controllers.Pinger{
			"db":    dbClient,
			"redis": redisClient,
		},
		Gatherer: registry,
	}

	deps.Auth, err = auth.NewService(auth.ServiceParams{
		RepresentativeRepo: repRepo,
		SessionManager:     sessionManager,
		JWTConfig:          cfg.JWT,
		PasswordConfig:     cfg.Password,
	})
	proc.Must("auth service", err)

	deps.Register, err = auth.NewRegisterService(auth.RegisterServiceParams{
		DB:                 dbClient,
		SessionManager:     sessionManager,
		JWTConfig:          cfg.JWT,
		PasswordConfig:     cfg.Password,
		DefaultVisitRadius: cfg.Field.DefaultVisitRadiusMeters,
	})
	proc.Must("registration service", err)

	deps.Companies, err = companies.NewService(companyRepo, cfg.Field.DefaultVisitRadiusMeters)
	proc.Must("company service", err)

	deps.Territory, err = territories.NewService(territories.NewRepository(conn))
	proc.Must("territory service", err)

	var placeLookup interface {
		ResolvePlace(ctx context.Context, placeID string) (*maps.Place, error)
	}
	if mapsClient != nil {
		placeLookup = mapsClient
	}
	deps.Dealers, err = dealers.NewService(dealerRepo, deps.Territory, placeLookup, logg)
	proc.Must("dealer service", err)

	deps.Reps, err = representatives.NewService(repRepo, deps.Territory, cfg.Password)
	proc.Must("representative service", err)

	deps.Leads, err = leads.NewService(leadRepo, repRepo, dbClient, events, locker, logg)
	proc.Must("lead service", err)

	visitService, err := visits.NewService(visits.Deps{
		Visits:              visitRepo,
		Sessions:            sessionRepo,
		Dealers:             dealerRepo,
		Leads:               leadRepo,
		Companies:           companyRepo,
		Representatives:     repRepo,
		Tx:                  dbClient,
		Outbox:              events,
		Locker:              locker,
		Metrics:             fieldMetrics,
		Logger:              logg,
		DefaultRadiusMeters: cfg.Field.DefaultVisitRadiusMeters,
	})
	proc.Must("visit service", err)
	deps.Visits = visitService

	deps.Market, err = sessions.NewService(sessions.Deps{
		Sessions:        sessionRepo,
		Representatives: repRepo,
		Visits:          visitRepo,
		Abandoner:       visitService,
		Tx:              dbClient,
		Outbox:          events,
		Locker:          locker,
		Metrics:         fieldMetrics,
		Logger:          logg,
	})
	proc.Must("session service", err)

	nearbyDeps := nearby.Deps{
		Representatives: repRepo,
		Visits:          visitRepo,
		Sessions:        sessionRepo,
		Radius:          deps.Companies,
		Dealers:         dealerRepo,
		Leads:           deps.Leads,
		Tx:              dbClient,
		Metrics:         fieldMetrics,
		Logger:          logg,
		Options:         nearby.OptionsFromConfig(cfg.Field),
	}
	if mapsClient != nil {
		nearbyDeps.Places = mapsClient
	}
	deps.Nearby, err = nearby.NewResolver(nearbyDeps)
	proc.Must("nearby resolver", err)

	deps.Reports, err = reports.NewService(reports.Deps{
		Sessions:        sessionRepo,
		Rollups:         reports.NewRepository(conn),
		Representatives: repRepo,
		Dealers:         dealerRepo,
		Companies:       companyRepo,
	})
	proc.Must("report service", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	instance := os.Getenv("DYNO")
	if instance == "" {
		instance = "local"
	}
	logg.Info(logg.WithFields(ctx, map[string]any{
		"addr":     ":" + port,
		"instance": instance,
	}), "api listening")

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}
	proc.Run(bootstrap.HTTPTask(server, shutdownTimeout))
}
