package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/fieldops-backend/api/controllers"
	"github.com/angelmondragon/fieldops-backend/api/middleware"
	"github.com/angelmondragon/fieldops-backend/internal/auth"
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
	"github.com/angelmondragon/fieldops-backend/pkg/config"
	"github.com/angelmondragon/fieldops-backend/pkg/enums"
	"github.com/angelmondragon/fieldops-backend/pkg/logger"
	"github.com/angelmondragon/fieldops-backend/pkg/redis"
)

// Deps carries everything the HTTP surface is wired to. Nil services answer
// with a 500 from their controllers; nil pingers are skipped by readiness.
type Deps struct {
	Sessions  session.AccessSessionChecker
	Redis     *redis.Client
	Pingers   map[string]controllers.Pinger
	Gatherer  prometheus.Gatherer
	Auth      auth.Service
	Register  auth.RegisterService
	Companies companies.Service
	Territory territories.Service
	Dealers   dealers.Service
	Reps      representatives.Service
	Market    sessions.Service
	Nearby    nearby.Resolver
	Visits    visits.Service
	Leads     leads.Service
	Reports   reports.Service
}

var (
	adminRoles      = []enums.Role{enums.RoleOrgAdmin, enums.RoleAdmin}
	supervisorRoles = []enums.Role{enums.RoleOrgAdmin, enums.RoleAdmin, enums.RoleHOD}
	managementRoles = []enums.Role{enums.RoleOrgAdmin, enums.RoleAdmin, enums.RoleHOD, enums.RoleOwner}
	fieldRoles      = []enums.Role{enums.RoleSalesRep}
	checkoutRoles   = []enums.Role{enums.RoleOrgAdmin, enums.RoleAdmin, enums.RoleHOD, enums.RoleSalesRep}
)

type middlewareFunc = func(http.Handler) http.Handler

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Pingers))
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	loginPolicy := middleware.LoginPolicy{
		Window:     cfg.AuthRateLimit.LoginWindow,
		IPLimit:    cfg.AuthRateLimit.LoginIPLimit,
		EmailLimit: cfg.AuthRateLimit.LoginEmailLimit,
	}
	var loginLimiter middleware.WindowLimiter = middleware.NewLocalLimiter()
	if deps.Redis != nil {
		loginLimiter = deps.Redis
	}

	throttle := middleware.LoginThrottle(loginPolicy, loginLimiter, logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.With(throttle).Post("/company/register", controllers.CompanyRegister(deps.Register, logg))

		r.Route("/auth", func(r chi.Router) {
			r.With(throttle).Post("/login", controllers.AuthLogin(deps.Auth, logg))
			r.Post("/refresh", controllers.AuthRefresh(deps.Auth, logg))
			r.Post("/logout", controllers.AuthLogout(deps.Auth, logg))
			r.With(middleware.Auth(cfg.JWT, deps.Sessions, logg)).Get("/me", controllers.AuthMe(deps.Auth, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(
				middleware.Auth(cfg.JWT, deps.Sessions, logg),
				middleware.APIRateLimit(cfg.AuthRateLimit.APIRequests, cfg.AuthRateLimit.APIWindow, logg),
			)

			var replay middleware.ResponseStore
			if deps.Redis != nil {
				replay = deps.Redis
			}
			idem := middleware.Idempotent(replay, middleware.IdempotencyTTL, logg)
			orderIdem := middleware.Idempotent(replay, middleware.OrderIdempotencyTTL, logg)

			mountCompany(r, logg, deps, idem)
			mountFieldWork(r, logg, deps, idem, orderIdem)
			mountReports(r, logg, deps)
		})
	})

	return r
}

func mountCompany(r chi.Router, logg *logger.Logger, deps Deps, idem middlewareFunc) {
	admin := middleware.RequireRoles(logg, adminRoles...)

	r.Route("/company/config", func(r chi.Router) {
		r.Get("/", controllers.CompanyConfig(deps.Companies, logg))
		r.With(admin).Put("/", controllers.CompanyUpdateConfig(deps.Companies, logg))
	})

	r.Route("/territories", func(r chi.Router) {
		r.Get("/", controllers.TerritoryList(deps.Territory, logg))
		r.With(admin).Post("/", controllers.TerritoryCreate(deps.Territory, logg))
		r.With(admin).Put("/{territoryId}", controllers.TerritoryUpdate(deps.Territory, logg))
		r.With(admin).Delete("/{territoryId}", controllers.TerritoryDelete(deps.Territory, logg))
	})

	r.Route("/dealers", func(r chi.Router) {
		r.Get("/", controllers.DealerList(deps.Dealers, logg))
		r.With(admin).Post("/", controllers.DealerCreate(deps.Dealers, logg))
		r.With(admin).Put("/{dealerId}", controllers.DealerUpdate(deps.Dealers, logg))
		r.With(admin).Delete("/{dealerId}", controllers.DealerDelete(deps.Dealers, logg))
	})

	r.Route("/representatives", func(r chi.Router) {
		r.With(middleware.RequireRoles(logg, managementRoles...)).Get("/", controllers.RepresentativeList(deps.Reps, logg))
		r.Group(func(r chi.Router) {
			r.Use(admin)
			r.With(idem).Post("/", controllers.RepresentativeCreate(deps.Reps, logg))
			r.Put("/{repId}/territory", controllers.RepresentativeAssignTerritory(deps.Reps, logg))
			r.Put("/{repId}/targets", controllers.RepresentativeUpdateTargets(deps.Reps, logg))
			r.Delete("/{repId}", controllers.RepresentativeDeactivate(deps.Reps, logg))
		})
	})

	r.With(middleware.RequireRoles(logg, supervisorRoles...)).Get("/tracking/live", controllers.TrackingLive(deps.Reps, logg))
}

func mountFieldWork(r chi.Router, logg *logger.Logger, deps Deps, idem, orderIdem middlewareFunc) {
	field := middleware.RequireRoles(logg, fieldRoles...)

	r.Route("/market", func(r chi.Router) {
		r.Use(field)
		r.With(idem).Post("/start", controllers.MarketStart(deps.Market, logg))
		r.With(idem).Post("/end", controllers.MarketEnd(deps.Market, logg))
		r.Get("/active", controllers.MarketActive(deps.Market, logg))
		r.Post("/location", controllers.MarketLocation(deps.Market, logg))
		r.Get("/nearby", controllers.MarketNearby(deps.Nearby, logg))
	})

	r.Route("/visits", func(r chi.Router) {
		r.With(field, idem).Post("/check-in", controllers.VisitCheckIn(deps.Visits, logg))
		r.With(field, orderIdem).Post("/{visitId}/check-out", controllers.VisitCheckOut(deps.Visits, logg))
		// Reps may force their own checkout; the service scopes the target.
		r.With(middleware.RequireRoles(logg, checkoutRoles...), idem).Post("/force-checkout", controllers.VisitForceCheckout(deps.Visits, logg))
		r.Get("/today", controllers.VisitsToday(deps.Visits, logg))
		r.Get("/history", controllers.VisitsHistory(deps.Visits, logg))
		r.Get("/history/export", controllers.VisitsExport(deps.Visits, logg))
	})

	r.Route("/leads", func(r chi.Router) {
		r.Get("/", controllers.LeadList(deps.Leads, logg))
		r.With(field).Get("/assigned", controllers.LeadAssigned(deps.Leads, logg))
		r.With(middleware.RequireRoles(logg, managementRoles...), idem).Post("/{leadId}/assign", controllers.LeadAssign(deps.Leads, logg))
		r.With(field, orderIdem).Post("/{leadId}/visit", controllers.LeadVisit(deps.Visits, logg))
	})

	r.Route("/sessions/{sessionId}", func(r chi.Router) {
		r.Get("/stats", controllers.SessionStats(deps.Reports, logg))
		r.Get("/detail", controllers.SessionDetail(deps.Reports, logg))
		r.With(middleware.RequireRoles(logg, supervisorRoles...), idem).Post("/force-close", controllers.SessionForceClose(deps.Market, logg))
	})
}

func mountReports(r chi.Router, logg *logger.Logger, deps Deps) {
	r.Route("/reports", func(r chi.Router) {
		r.Use(middleware.RequireRoles(logg, managementRoles...))
		r.Get("/dashboard", controllers.ReportDashboard(deps.Reports, logg))
		r.Get("/executive-performance", controllers.ReportExecutivePerformance(deps.Reports, logg))
		r.Get("/lost-visits", controllers.ReportLostVisits(deps.Reports, logg))
	})
}
