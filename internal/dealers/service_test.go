package dealers

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/fieldops-backend/internal/authz"
	"github.com/angelmondragon/fieldops-backend/internal/territories"
	"github.com/angelmondragon/fieldops-backend/internal/testdb"
	"github.com/angelmondragon/fieldops-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldops-backend/pkg/errors"
	"github.com/angelmondragon/fieldops-backend/pkg/geo"
	"github.com/angelmondragon/fieldops-backend/pkg/logger"
	"github.com/angelmondragon/fieldops-backend/pkg/maps"
)

type stubPlaces struct {
	place *maps.Place
	err   error
	calls int
}

func (s *stubPlaces) ResolvePlace(ctx context.Context, placeID string) (*maps.Place, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.place, nil
}

type fixture struct {
	conn        *gorm.DB
	repo        *Repository
	svc         Service
	places      *stubPlaces
	territories territories.Service
	admin       authz.Actor
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn, _ := testdb.Open(t)
	terrSvc, err := territories.NewService(territories.NewRepository(conn))
	require.NoError(t, err)
	places := &stubPlaces{}
	repo := NewRepository(conn)
	svc, err := NewService(repo, terrSvc, places, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	require.NoError(t, err)
	return fixture{
		conn:        conn,
		repo:        repo,
		svc:         svc,
		places:      places,
		territories: terrSvc,
		admin:       authz.Actor{UserID: uuid.New(), CompanyID: uuid.New(), Role: enums.RoleOrgAdmin},
	}
}

func TestCreateWithTerritoryDenormalizesState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	state, err := f.territories.Create(ctx, f.admin, territories.TerritoryInput{Name: "Karnataka", Type: enums.TerritoryState})
	require.NoError(t, err)
	city, err := f.territories.Create(ctx, f.admin, territories.TerritoryInput{Name: "Bengaluru", Type: enums.TerritoryCity, ParentID: &state.ID})
	require.NoError(t, err)

	ref := city.ID.String()
	dto, err := f.svc.Create(ctx, f.admin, DealerInput{
		Name:         "Sri Traders",
		DealerType:   "Retailer",
		Location:     &geo.Point{Lat: 12.97, Lng: 77.59},
		TerritoryRef: &ref,
	})
	require.NoError(t, err)
	assert.Equal(t, "Karnataka", *dto.State)
	assert.Equal(t, "Bengaluru", *dto.City)
	assert.Equal(t, 1, dto.Priority)
	assert.Equal(t, enums.VisitFrequencyWeekly, dto.VisitFrequency)
	assert.NotNil(t, dto.NextVisitDue)
	assert.Zero(t, f.places.calls)
}

func TestCreateResolvesPlaceWhenLocationMissing(t *testing.T) {
	f := newFixture(t)
	f.places.place = &maps.Place{
		PlaceID:          "abc",
		Name:             "Corner Store",
		FormattedAddress: "1 Main Rd",
		Location:         geo.Point{Lat: 18.52, Lng: 73.85},
		State:            "Maharashtra",
		City:             "Pune",
	}
	placeID := "abc"

	dto, err := f.svc.Create(context.Background(), f.admin, DealerInput{Name: "Corner Store", PlaceID: &placeID})
	require.NoError(t, err)
	assert.Equal(t, 1, f.places.calls)
	assert.InDelta(t, 18.52, dto.Location.Lat, 1e-9)
	assert.Equal(t, "Pune", *dto.City)
	assert.Equal(t, "1 Main Rd", *dto.Address)

	_, err = f.svc.Create(context.Background(), f.admin, DealerInput{Name: "Dup", PlaceID: &placeID})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.admin, DealerInput{Name: "No Location"})
	assert.Equal(t, pkgerrors.ReasonInvalidLocation, pkgerrors.ReasonOf(err))

	_, err = f.svc.Create(ctx, f.admin, DealerInput{Name: "Bad", Location: &geo.Point{Lat: 91, Lng: 0}})
	assert.Equal(t, pkgerrors.ReasonInvalidLocation, pkgerrors.ReasonOf(err))

	_, err = f.svc.Create(ctx, f.admin, DealerInput{Name: "Prio", Location: &geo.Point{Lat: 1, Lng: 1}, Priority: 4})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	f.places.err = errors.New("upstream down")
	placeID := "zzz"
	_, err = f.svc.Create(ctx, f.admin, DealerInput{Name: "Lookup", PlaceID: &placeID})
	require.Error(t, err)

	rep := authz.Actor{UserID: uuid.New(), CompanyID: f.admin.CompanyID, Role: enums.RoleSalesRep}
	_, err = f.svc.Create(ctx, rep, DealerInput{Name: "Rep", Location: &geo.Point{Lat: 1, Lng: 1}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestDeleteHidesDealer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dto, err := f.svc.Create(ctx, f.admin, DealerInput{Name: "Gone", Location: &geo.Point{Lat: 1, Lng: 1}})
	require.NoError(t, err)
	require.NoError(t, f.svc.Delete(ctx, f.admin, dto.ID))

	_, err = f.svc.Get(ctx, f.admin, dto.ID)
	assert.Equal(t, pkgerrors.ReasonDealerNotFound, pkgerrors.ReasonOf(err))

	err = f.svc.Delete(ctx, f.admin, dto.ID)
	assert.Equal(t, pkgerrors.ReasonDealerNotFound, pkgerrors.ReasonOf(err))

	list, err := f.svc.List(ctx, f.admin, ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRepositoryBoundsAndPlaceLookup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	center := geo.Point{Lat: 19.0, Lng: 72.8}

	near := geo.Offset(center, 300, 0)
	far := geo.Offset(center, 5000, 0)
	placeID := "known"
	_, err := f.svc.Create(ctx, f.admin, DealerInput{Name: "Near", Location: &near, PlaceID: &placeID})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, f.admin, DealerInput{Name: "Far", Location: &far})
	require.NoError(t, err)

	rows, err := f.repo.FindWithinBounds(ctx, f.admin.CompanyID, geo.BoundingBox(center, 1000))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Near", rows[0].Name)

	known, err := f.repo.FindPlaceIDs(ctx, f.admin.CompanyID, []string{"known", "unknown"})
	require.NoError(t, err)
	assert.Contains(t, known, "known")
	assert.NotContains(t, known, "unknown")

	visited := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, f.conn.Transaction(func(tx *gorm.DB) error {
		return f.repo.UpdateVisitStatsTx(tx, rows[0].ID, visited, enums.OutcomeOrderBooked, visited.AddDate(0, 0, 7))
	}))
	stored, err := f.repo.FindByID(ctx, f.admin.CompanyID, rows[0].ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastVisitOutcome)
	assert.Equal(t, enums.OutcomeOrderBooked, *stored.LastVisitOutcome)
	assert.True(t, stored.NextVisitDue.Equal(visited.AddDate(0, 0, 7)))
}
