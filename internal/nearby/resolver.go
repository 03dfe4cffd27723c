// Package nearby resolves the dealers and leads suggested to a representative
// in the field.
package nearby

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/fieldops-backend/internal/authz"
	"github.com/angelmondragon/fieldops-backend/pkg/config"
	"github.com/angelmondragon/fieldops-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/fieldops-backend/pkg/errors"
	"github.com/angelmondragon/fieldops-backend/pkg/geo"
	"github.com/angelmondragon/fieldops-backend/pkg/logger"
	"github.com/angelmondragon/fieldops-backend/pkg/maps"
	"github.com/angelmondragon/fieldops-backend/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type representativeLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Representative, error)
}

type openVisitLookup interface {
	FindOpenByRep(ctx context.Context, repID uuid.UUID) (*models.Visit, error)
}

type sessionStore interface {
	FindOpenByRep(ctx context.Context, repID uuid.UUID) (*models.MarketSession, error)
	AddShownTx(tx *gorm.DB, rows []models.SessionDealerShown) error
}

type radiusSource interface {
	VisitRadius(ctx context.Context, companyID uuid.UUID) (int, error)
}

type dealerFinder interface {
	FindWithinBounds(ctx context.Context, companyID uuid.UUID, b geo.Bounds) ([]models.Dealer, error)
	FindPlaceIDs(ctx context.Context, companyID uuid.UUID, placeIDs []string) (map[string]struct{}, error)
}

type placesSearcher interface {
	SearchNearby(ctx context.Context, req maps.NearbyRequest) ([]maps.Place, error)
}

type leadMaterializer interface {
	EnsureByPlacesTx(ctx context.Context, tx *gorm.DB, actor authz.Actor, sessionID *uuid.UUID, places []maps.Place) (map[string]models.PotentialDealer, error)
}

// Resolver answers "what should I visit next?" for a representative.
type Resolver interface {
	Resolve(ctx context.Context, actor authz.Actor, location geo.Point) (*Result, error)
}

// Options tunes discovery. Zero values take the FieldConfig defaults.
type Options struct {
	DiscoveryMultiplier float64
	PlacesTimeout       time.Duration
	IncludedTypes       []string
	MaxResults          int
}

// OptionsFromConfig maps FieldConfig onto resolver options.
func OptionsFromConfig(cfg config.FieldConfig) Options {
	return Options{
		DiscoveryMultiplier: cfg.DiscoveryMultiplier,
		PlacesTimeout:       cfg.PlacesTimeout,
		IncludedTypes:       cfg.PlacesIncludedTypes,
		MaxResults:          cfg.PlacesMaxResults,
	}
}

type Deps struct {
	Representatives representativeLookup
	Visits          openVisitLookup
	Sessions        sessionStore
	Radius          radiusSource
	Dealers         dealerFinder
	// Places may be nil when no API key is configured; lookups then degrade
	// to internal-only results.
	Places  placesSearcher
	Leads   leadMaterializer
	Tx      txRunner
	Metrics *metrics.FieldMetrics
	Logger  *logger.Logger
	Options Options
}

type resolver struct {
	reps     representativeLookup
	visits   openVisitLookup
	sessions sessionStore
	radius   radiusSource
	dealers  dealerFinder
	places   placesSearcher
	leads    leadMaterializer
	tx       txRunner
	metrics  *metrics.FieldMetrics
	logg     *logger.Logger
	opts     Options
	now      func() time.Time
}

func NewResolver(deps Deps) (Resolver, error) {
	switch {
	case deps.Representatives == nil:
		return nil, fmt.Errorf("representative lookup required")
	case deps.Visits == nil:
		return nil, fmt.Errorf("open visit lookup required")
	case deps.Sessions == nil:
		return nil, fmt.Errorf("session store required")
	case deps.Radius == nil:
		return nil, fmt.Errorf("radius source required")
	case deps.Dealers == nil:
		return nil, fmt.Errorf("dealer finder required")
	case deps.Leads == nil:
		return nil, fmt.Errorf("lead materializer required")
	case deps.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	opts := deps.Options
	if opts.DiscoveryMultiplier < 1 {
		opts.DiscoveryMultiplier = 2
	}
	if opts.PlacesTimeout <= 0 {
		opts.PlacesTimeout = 3 * time.Second
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 20
	}
	return &resolver{
		reps:     deps.Representatives,
		visits:   deps.Visits,
		sessions: deps.Sessions,
		radius:   deps.Radius,
		dealers:  deps.Dealers,
		places:   deps.Places,
		leads:    deps.Leads,
		tx:       deps.Tx,
		metrics:  deps.Metrics,
		logg:     deps.Logger,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *resolver) Resolve(ctx context.Context, actor authz.Actor, location geo.Point) (*Result, error) {
	if err := authz.Require(actor, authz.CapFieldWork, authz.Self(actor)); err != nil {
		return nil, err
	}
	if err := location.Validate(); err != nil {
		return nil, err
	}
	started := time.Now()

	open, err := r.visits.FindOpenByRep(ctx, actor.UserID)
	switch {
	case err == nil:
		id := open.ID
		return &Result{Candidates: []Candidate{}, OpenVisitID: &id}, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load open visit")
	}

	rep, err := r.reps.FindByID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.NotFound(pkgerrors.ReasonRepresentativeNotFound, "representative not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load representative")
	}
	restriction := rep.Restriction()

	radius, err := r.radius.VisitRadius(ctx, actor.CompanyID)
	if err != nil {
		return nil, err
	}
	discovery := float64(radius) * r.opts.DiscoveryMultiplier

	var sessionID *uuid.UUID
	session, err := r.sessions.FindOpenByRep(ctx, actor.UserID)
	switch {
	case err == nil:
		id := session.ID
		sessionID = &id
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load open session")
	}

	var (
		internal []Candidate
		places   []maps.Place
		degraded bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		internal, err = r.internalCandidates(gctx, actor.CompanyID, location, discovery, restriction)
		return err
	})
	g.Go(func() error {
		places, degraded = r.externalPlaces(gctx, actor, location, discovery, restriction)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load nearby dealers")
	}

	candidates := internal
	err = r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		leads, err := r.leads.EnsureByPlacesTx(ctx, tx, actor, sessionID, places)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "materialize leads")
		}
		for _, p := range places {
			lead, ok := leads[p.PlaceID]
			if !ok {
				continue
			}
			candidates = append(candidates, fromLead(lead, geo.DistanceMeters(location, p.Location)))
		}
		Sort(candidates)

		if sessionID == nil || len(candidates) == 0 {
			return nil
		}
		now := r.now()
		rows := make([]models.SessionDealerShown, 0, len(candidates))
		for _, c := range candidates {
			rows = append(rows, models.SessionDealerShown{
				SessionID:      *sessionID,
				DealerRef:      c.DealerRef,
				Source:         c.Source,
				DealerName:     c.Name,
				DistanceMeters: c.DistanceMeters,
				ShownAt:        now,
			})
		}
		if err := r.sessions.AddShownTx(tx, rows); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record shown dealers")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.metrics.ObserveNearby(time.Since(started), len(internal), len(candidates)-len(internal))
	if candidates == nil {
		candidates = []Candidate{}
	}
	return &Result{
		Candidates:       candidates,
		SearchRadiusM:    int(math.Round(discovery)),
		SessionID:        sessionID,
		ExternalDegraded: degraded,
	}, nil
}

func (r *resolver) internalCandidates(ctx context.Context, companyID uuid.UUID, center geo.Point, radius float64, restriction models.TerritoryRestriction) ([]Candidate, error) {
	rows, err := r.dealers.FindWithinBounds(ctx, companyID, geo.BoundingBox(center, radius))
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(rows))
	for _, d := range rows {
		distance := geo.Haversine(center, d.Location())
		if distance > radius {
			continue
		}
		if !restriction.Allows(deref(d.State), deref(d.City)) {
			continue
		}
		out = append(out, fromDealer(d, int(math.Round(distance))))
	}
	return out, nil
}

// externalPlaces never fails the lookup. It reports degraded when the
// provider is missing, slow or erroring.
func (r *resolver) externalPlaces(ctx context.Context, actor authz.Actor, center geo.Point, radius float64, restriction models.TerritoryRestriction) ([]maps.Place, bool) {
	if r.places == nil {
		r.metrics.IncPlacesFallback(metrics.FallbackUnavailable)
		return nil, true
	}

	searchCtx, cancel := context.WithTimeout(ctx, r.opts.PlacesTimeout)
	defer cancel()
	found, err := r.places.SearchNearby(searchCtx, maps.NearbyRequest{
		Center:        center,
		RadiusMeters:  radius,
		IncludedTypes: r.opts.IncludedTypes,
		MaxResults:    r.opts.MaxResults,
	})
	if err != nil {
		reason := metrics.FallbackError
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(searchCtx.Err(), context.DeadlineExceeded) {
			reason = metrics.FallbackTimeout
		}
		r.metrics.IncPlacesFallback(reason)
		logCtx := r.logg.WithFields(ctx, map[string]any{
			"company_id":        actor.CompanyID.String(),
			"representative_id": actor.UserID.String(),
			"fallback_reason":   reason,
			"error":             err.Error(),
		})
		r.logg.Warn(logCtx, "nearby.places_degraded")
		return nil, true
	}
	if len(found) == 0 {
		return nil, false
	}

	ids := make([]string, 0, len(found))
	for _, p := range found {
		ids = append(ids, p.PlaceID)
	}
	known, err := r.dealers.FindPlaceIDs(ctx, actor.CompanyID, ids)
	if err != nil {
		r.metrics.IncPlacesFallback(metrics.FallbackError)
		r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "nearby.known_place_lookup_failed")
		return nil, true
	}

	out := make([]maps.Place, 0, len(found))
	seen := make(map[string]struct{}, len(found))
	for _, p := range found {
		if p.PlaceID == "" {
			continue
		}
		if _, dup := seen[p.PlaceID]; dup {
			continue
		}
		seen[p.PlaceID] = struct{}{}
		if _, isDealer := known[p.PlaceID]; isDealer {
			continue
		}
		if geo.Haversine(center, p.Location) > radius {
			continue
		}
		if !restriction.Allows(p.State, p.City) {
			continue
		}
		out = append(out, p)
	}
	return out, false
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
