package nearby

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/fieldops-backend/internal/authz"
	"github.com/angelmondragon/fieldops-backend/internal/companies"
	"github.com/angelmondragon/fieldops-backend/internal/dealers"
	"github.com/angelmondragon/fieldops-backend/internal/leads"
	"github.com/angelmondragon/fieldops-backend/internal/representatives"
	"github.com/angelmondragon/fieldops-backend/internal/sessions"
	"github.com/angelmondragon/fieldops-backend/internal/testdb"
	"github.com/angelmondragon/fieldops-backend/internal/visits"
	"github.com/angelmondragon/fieldops-backend/pkg/db/models"
	"github.com/angelmondragon/fieldops-backend/pkg/enums"
	"github.com/angelmondragon/fieldops-backend/pkg/geo"
	"github.com/angelmondragon/fieldops-backend/pkg/locks"
	"github.com/angelmondragon/fieldops-backend/pkg/logger"
	"github.com/angelmondragon/fieldops-backend/pkg/maps"
	"github.com/angelmondragon/fieldops-backend/pkg/metrics"
	"github.com/angelmondragon/fieldops-backend/pkg/outbox"
	"github.com/angelmondragon/fieldops-backend/pkg/types"
)

var center = geo.Point{Lat: 12.9716, Lng: 77.5946}

type stubPlaces struct {
	search func(ctx context.Context, req maps.NearbyRequest) ([]maps.Place, error)
	calls  int
}

func (s *stubPlaces) SearchNearby(ctx context.Context, req maps.NearbyRequest) ([]maps.Place, error) {
	s.calls++
	if s.search == nil {
		return nil, nil
	}
	return s.search(ctx, req)
}

type fixture struct {
	conn     *gorm.DB
	resolver Resolver
	places   *stubPlaces
	sessRepo *sessions.Repository
	visits   *visits.Repository
	metrics  *metrics.FieldMetrics
	company  *models.Company
	rep      *models.Representative
}

func newFixture(t *testing.T, opts Options) fixture {
	t.Helper()
	conn, client := testdb.Open(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	repRepo := representatives.NewRepository(conn)
	leadSvc, err := leads.NewService(leads.NewRepository(conn), repRepo, client, outbox.NewService(outbox.NewRepository(conn), logg), locks.NewLocalLocker(0), logg)
	require.NoError(t, err)
	companySvc, err := companies.NewService(companies.NewRepository(conn), 500)
	require.NoError(t, err)

	places := &stubPlaces{}
	fieldMetrics := metrics.NewFieldMetrics(prometheus.NewRegistry())
	sessRepo := sessions.NewRepository(conn)
	visitRepo := visits.NewRepository(conn)
	resolver, err := NewResolver(Deps{
		Representatives: repRepo,
		Visits:          visitRepo,
		Sessions:        sessRepo,
		Radius:          companySvc,
		Dealers:         dealers.NewRepository(conn),
		Places:          places,
		Leads:           leadSvc,
		Tx:              client,
		Metrics:         fieldMetrics,
		Logger:          logg,
		Options:         opts,
	})
	require.NoError(t, err)

	company := testdb.SeedCompany(t, conn, 500)
	return fixture{
		conn:     conn,
		resolver: resolver,
		places:   places,
		sessRepo: sessRepo,
		visits:   visitRepo,
		metrics:  fieldMetrics,
		company:  company,
		rep:      testdb.SeedRepresentative(t, conn, company.ID, enums.RoleSalesRep),
	}
}

func (f fixture) actor() authz.Actor {
	return authz.Actor{UserID: f.rep.ID, CompanyID: f.company.ID, Role: enums.RoleSalesRep}
}

func (f fixture) openSession(t *testing.T) *models.MarketSession {
	t.Helper()
	now := time.Now().UTC()
	session := &models.MarketSession{
		ID:               uuid.New(),
		CompanyID:        f.company.ID,
		RepresentativeID: f.rep.ID,
		StartTime:        now,
		StartLat:         center.Lat,
		StartLng:         center.Lng,
	}
	require.NoError(t, f.sessRepo.CreateTx(f.conn, session))
	return session
}

func place(id string, northMeters float64, state string) maps.Place {
	return maps.Place{PlaceID: id, Name: "Place " + id, Location: geo.Offset(center, northMeters, 0), State: state}
}

func withPriority(p int) func(*models.Dealer) {
	return func(d *models.Dealer) { d.Priority = p }
}

func TestResolveReturnsOpenVisitInsteadOfCandidates(t *testing.T) {
	f := newFixture(t, Options{})
	session := f.openSession(t)
	testdb.SeedDealer(t, f.conn, f.company.ID, "Near", geo.Offset(center, 100, 0))
	visit := &models.Visit{
		ID:               uuid.New(),
		CompanyID:        f.company.ID,
		RepresentativeID: f.rep.ID,
		MarketSessionID:  &session.ID,
		DealerRef:        types.DealerRef(uuid.NewString()),
		Source:           enums.DealerSourceInternal,
		DealerName:       "Open",
		CheckInTime:      time.Now().UTC(),
	}
	require.NoError(t, f.visits.CreateTx(f.conn, visit))

	result, err := f.resolver.Resolve(context.Background(), f.actor(), center)
	require.NoError(t, err)
	require.NotNil(t, result.OpenVisitID)
	assert.Equal(t, visit.ID, *result.OpenVisitID)
	assert.Empty(t, result.Candidates)
	assert.Equal(t, 0, f.places.calls)
}

func TestResolveInternalWithinDiscoveryRadius(t *testing.T) {
	f := newFixture(t, Options{})
	near := testdb.SeedDealer(t, f.conn, f.company.ID, "Near", geo.Offset(center, 300, 0), withPriority(2))
	tie := testdb.SeedDealer(t, f.conn, f.company.ID, "Tie", geo.Offset(center, -300, 0), withPriority(1))
	edge := testdb.SeedDealer(t, f.conn, f.company.ID, "Edge", geo.Offset(center, 800, 0))
	testdb.SeedDealer(t, f.conn, f.company.ID, "Far", geo.Offset(center, 1200, 0))

	result, err := f.resolver.Resolve(context.Background(), f.actor(), center)
	require.NoError(t, err)
	assert.Equal(t, 1000, result.SearchRadiusM)
	assert.False(t, result.ExternalDegraded)
	require.Len(t, result.Candidates, 3)
	assert.Equal(t, tie.ID, *result.Candidates[0].DealerID)
	assert.Equal(t, near.ID, *result.Candidates[1].DealerID)
	assert.Equal(t, edge.ID, *result.Candidates[2].DealerID)
	assert.Equal(t, 800, result.Candidates[2].DistanceMeters)
	assert.Nil(t, result.SessionID)
}

func TestResolveMaterializesExternalLeadsOnce(t *testing.T) {
	f := newFixture(t, Options{})
	session := f.openSession(t)
	converted := "ChIJconverted"
	testdb.SeedDealer(t, f.conn, f.company.ID, "Converted", geo.Offset(center, 200, 0), func(d *models.Dealer) {
		d.PlaceID = &converted
	})
	f.places.search = func(_ context.Context, req maps.NearbyRequest) ([]maps.Place, error) {
		assert.InDelta(t, 1000, req.RadiusMeters, 0.001)
		return []maps.Place{
			place(converted, 200, "Karnataka"),
			place("ChIJnew", 900, "Karnataka"),
			place("ChIJfar", 1500, "Karnataka"),
		}, nil
	}

	first, err := f.resolver.Resolve(context.Background(), f.actor(), center)
	require.NoError(t, err)
	require.Len(t, first.Candidates, 2)
	assert.Equal(t, enums.DealerSourceInternal, first.Candidates[0].Source)
	lead := first.Candidates[1]
	assert.Equal(t, enums.DealerSourceExternal, lead.Source)
	assert.Equal(t, types.ExternalRef("ChIJnew"), lead.DealerRef)
	assert.Equal(t, 3, lead.Priority)
	require.NotNil(t, lead.PotentialID)

	second, err := f.resolver.Resolve(context.Background(), f.actor(), center)
	require.NoError(t, err)
	require.Len(t, second.Candidates, 2)
	assert.Equal(t, *lead.PotentialID, *second.Candidates[1].PotentialID)

	var stored models.PotentialDealer
	require.NoError(t, f.conn.First(&stored, "place_id = ?", "ChIJnew").Error)
	assert.Equal(t, f.rep.ID, stored.FoundBy)
	require.NotNil(t, stored.FoundInSessionID)
	assert.Equal(t, session.ID, *stored.FoundInSessionID)
	assert.EqualValues(t, 1, testdb.CountEvents(t, f.conn, enums.EventLeadDiscovered))

	shown, err := f.sessRepo.CountShown(context.Background(), session.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, shown)
}

func TestResolveDegradesWhenPlacesFail(t *testing.T) {
	f := newFixture(t, Options{})
	testdb.SeedDealer(t, f.conn, f.company.ID, "Near", geo.Offset(center, 100, 0))
	f.places.search = func(context.Context, maps.NearbyRequest) ([]maps.Place, error) {
		return nil, errors.New("quota exceeded")
	}

	result, err := f.resolver.Resolve(context.Background(), f.actor(), center)
	require.NoError(t, err)
	assert.True(t, result.ExternalDegraded)
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, enums.DealerSourceInternal, result.Candidates[0].Source)
}

func TestResolveDegradesOnPlacesTimeout(t *testing.T) {
	f := newFixture(t, Options{PlacesTimeout: 20 * time.Millisecond})
	f.places.search = func(ctx context.Context, _ maps.NearbyRequest) ([]maps.Place, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	result, err := f.resolver.Resolve(context.Background(), f.actor(), center)
	require.NoError(t, err)
	assert.True(t, result.ExternalDegraded)
	assert.Empty(t, result.Candidates)
}

func TestResolveAppliesTerritoryRestriction(t *testing.T) {
	f := newFixture(t, Options{})
	require.NoError(t, representatives.NewRepository(f.conn).UpdateTerritory(context.Background(), f.rep.ID, nil, testdb.StrPtr("Karnataka"), nil, false))
	home := testdb.SeedDealer(t, f.conn, f.company.ID, "Home", geo.Offset(center, 100, 0), func(d *models.Dealer) {
		d.State = testdb.StrPtr("Karnataka")
	})
	testdb.SeedDealer(t, f.conn, f.company.ID, "Away", geo.Offset(center, 150, 0), func(d *models.Dealer) {
		d.State = testdb.StrPtr("Goa")
	})
	testdb.SeedDealer(t, f.conn, f.company.ID, "Unknown", geo.Offset(center, 200, 0))
	f.places.search = func(context.Context, maps.NearbyRequest) ([]maps.Place, error) {
		return []maps.Place{
			place("ChIJin", 300, "karnataka"),
			place("ChIJout", 300, "Kerala"),
			place("ChIJunknown", 300, ""),
		}, nil
	}

	result, err := f.resolver.Resolve(context.Background(), f.actor(), center)
	require.NoError(t, err)
	require.Len(t, result.Candidates, 2)
	assert.Equal(t, home.ID, *result.Candidates[0].DealerID)
	assert.Equal(t, types.ExternalRef("ChIJin"), result.Candidates[1].DealerRef)
}

func TestResolveWithoutPlacesProvider(t *testing.T) {
	conn, client := testdb.Open(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	repRepo := representatives.NewRepository(conn)
	leadSvc, err := leads.NewService(leads.NewRepository(conn), repRepo, client, outbox.NewService(outbox.NewRepository(conn), logg), locks.NewLocalLocker(0), logg)
	require.NoError(t, err)
	companySvc, err := companies.NewService(companies.NewRepository(conn), 500)
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	fieldMetrics := metrics.NewFieldMetrics(reg)

	resolver, err := NewResolver(Deps{
		Representatives: repRepo,
		Visits:          visits.NewRepository(conn),
		Sessions:        sessions.NewRepository(conn),
		Radius:          companySvc,
		Dealers:         dealers.NewRepository(conn),
		Leads:           leadSvc,
		Tx:              client,
		Metrics:         fieldMetrics,
		Logger:          logg,
	})
	require.NoError(t, err)
	company := testdb.SeedCompany(t, conn, 500)
	rep := testdb.SeedRepresentative(t, conn, company.ID, enums.RoleSalesRep)

	result, err := resolver.Resolve(context.Background(), authz.Actor{UserID: rep.ID, CompanyID: company.ID, Role: enums.RoleSalesRep}, center)
	require.NoError(t, err)
	assert.True(t, result.ExternalDegraded)
	families, err := reg.Gather()
	require.NoError(t, err)
	var fallback float64
	for _, family := range families {
		if family.GetName() != "fieldops_places_fallback_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			fallback += m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(1), fallback)
}

func TestSortTieBreakers(t *testing.T) {
	candidates := []Candidate{
		{DealerRef: "google_b", Source: enums.DealerSourceExternal, DistanceMeters: 10, Priority: 3},
		{DealerRef: "d2", Source: enums.DealerSourceInternal, DistanceMeters: 10, Priority: 3},
		{DealerRef: "d1", Source: enums.DealerSourceInternal, DistanceMeters: 10, Priority: 1},
		{DealerRef: "google_a", Source: enums.DealerSourceExternal, DistanceMeters: 10, Priority: 3},
		{DealerRef: "d0", Source: enums.DealerSourceInternal, DistanceMeters: 5, Priority: 3},
	}
	Sort(candidates)

	want := []types.DealerRef{"d0", "d1", "d2", "google_a", "google_b"}
	for i, ref := range want {
		if candidates[i].DealerRef != ref {
			t.Fatalf("position %d: expected %s, got %s", i, ref, candidates[i].DealerRef)
		}
	}
}
