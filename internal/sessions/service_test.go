package sessions

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/fieldops-backend/internal/authz"
	"github.com/angelmondragon/fieldops-backend/internal/representatives"
	"github.com/angelmondragon/fieldops-backend/internal/testdb"
	"github.com/angelmondragon/fieldops-backend/pkg/db/models"
	"github.com/angelmondragon/fieldops-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldops-backend/pkg/errors"
	"github.com/angelmondragon/fieldops-backend/pkg/geo"
	"github.com/angelmondragon/fieldops-backend/pkg/locks"
	"github.com/angelmondragon/fieldops-backend/pkg/logger"
	"github.com/angelmondragon/fieldops-backend/pkg/outbox"
	"github.com/angelmondragon/fieldops-backend/pkg/types"
)

type tableVisitFinder struct{}

func (tableVisitFinder) FindOpenByRepTx(tx *gorm.DB, repID uuid.UUID) (*models.Visit, error) {
	var visit models.Visit
	if err := tx.Where("representative_id = ? AND check_out_time IS NULL", repID).First(&visit).Error; err != nil {
		return nil, err
	}
	return &visit, nil
}

type stubAbandoner struct {
	calls int
}

func (s *stubAbandoner) AbandonOpenVisitTx(_ context.Context, tx *gorm.DB, _ authz.Actor, repID uuid.UUID) (*models.Visit, error) {
	s.calls++
	visit, err := tableVisitFinder{}.FindOpenByRepTx(tx, repID)
	if err != nil {
		return nil, nil
	}
	outcome := enums.OutcomeAbandoned
	now := time.Now().UTC()
	if err := tx.Model(&models.Visit{}).Where("id = ?", visit.ID).
		Updates(map[string]any{"check_out_time": now, "outcome": outcome}).Error; err != nil {
		return nil, err
	}
	return visit, nil
}

type fixture struct {
	conn      *gorm.DB
	repo      *Repository
	svc       Service
	abandoner *stubAbandoner
	company   *models.Company
	rep       *models.Representative
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn, client := testdb.Open(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	repo := NewRepository(conn)
	abandoner := &stubAbandoner{}
	svc, err := NewService(Deps{
		Sessions:        repo,
		Representatives: representatives.NewRepository(conn),
		Visits:          tableVisitFinder{},
		Abandoner:       abandoner,
		Tx:              client,
		Outbox:          outbox.NewService(outbox.NewRepository(conn), logg),
		Locker:          locks.NewLocalLocker(0),
		Logger:          logg,
	})
	require.NoError(t, err)

	company := testdb.SeedCompany(t, conn, 500)
	return fixture{
		conn:      conn,
		repo:      repo,
		svc:       svc,
		abandoner: abandoner,
		company:   company,
		rep:       testdb.SeedRepresentative(t, conn, company.ID, enums.RoleSalesRep),
	}
}

func (f fixture) actor() authz.Actor {
	return authz.Actor{UserID: f.rep.ID, CompanyID: f.company.ID, Role: enums.RoleSalesRep}
}

func (f fixture) seedOpenVisit(t *testing.T, sessionID uuid.UUID) *models.Visit {
	t.Helper()
	visit := &models.Visit{
		ID:               uuid.New(),
		CompanyID:        f.company.ID,
		RepresentativeID: f.rep.ID,
		MarketSessionID:  &sessionID,
		DealerRef:        types.DealerRef(uuid.NewString()),
		Source:           enums.DealerSourceInternal,
		DealerName:       "Dealer",
		CheckInTime:      time.Now().UTC(),
	}
	require.NoError(t, f.conn.Create(visit).Error)
	return visit
}

var home = geo.Point{Lat: 15.49, Lng: 73.82}

func TestStartSessionMarksRepresentativeInMarket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.Start(ctx, f.actor(), home)
	require.NoError(t, err)
	assert.True(t, session.IsInMarket)
	assert.Equal(t, home, session.StartLocation)

	var rep models.Representative
	require.NoError(t, f.conn.First(&rep, "id = ?", f.rep.ID).Error)
	assert.True(t, rep.IsInMarket)
	require.NotNil(t, rep.ActiveSessionID)
	assert.Equal(t, session.ID, *rep.ActiveSessionID)
	assert.EqualValues(t, 1, testdb.CountEvents(t, f.conn, enums.EventMarketSessionStarted))
}

func TestStartSessionRejectsSecondOpenSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Start(ctx, f.actor(), home)
	require.NoError(t, err)

	_, err = f.svc.Start(ctx, f.actor(), home)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.ReasonAlreadyInMarket, pkgerrors.ReasonOf(err))
	details := pkgerrors.As(err).Details().(map[string]any)
	assert.Equal(t, first.ID.String(), details["session_id"])
}

func TestConcurrentStartsOpenOneSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const callers = 8
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		ok     int
		failed []error
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.Start(ctx, f.actor(), home)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
				return
			}
			failed = append(failed, err)
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, ok)
	require.Len(t, failed, callers-1)
	for _, err := range failed {
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "got %v", err)
		assert.Contains(t, []pkgerrors.Reason{pkgerrors.ReasonAlreadyInMarket, pkgerrors.ReasonRequestInProgress}, pkgerrors.ReasonOf(err))
	}

	var open int64
	require.NoError(t, f.conn.Model(&models.MarketSession{}).
		Where("representative_id = ? AND end_time IS NULL", f.rep.ID).
		Count(&open).Error)
	assert.EqualValues(t, 1, open)
	assert.EqualValues(t, 1, testdb.CountEvents(t, f.conn, enums.EventMarketSessionStarted))
}

func TestStartSessionValidatesLocationAndRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, f.actor(), geo.Point{Lat: 120, Lng: 0})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.ReasonInvalidLocation, pkgerrors.ReasonOf(err))

	admin := authz.Actor{UserID: uuid.New(), CompanyID: f.company.ID, Role: enums.RoleAdmin}
	_, err = f.svc.Start(ctx, admin, home)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestStartSessionRejectsDeactivatedRep(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, representatives.NewRepository(f.conn).Deactivate(context.Background(), f.rep.ID, time.Now()))

	_, err := f.svc.Start(context.Background(), f.actor(), home)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	var count int64
	require.NoError(t, f.conn.Model(&models.MarketSession{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEndSessionBlockedByOpenVisit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.Start(ctx, f.actor(), home)
	require.NoError(t, err)
	visit := f.seedOpenVisit(t, session.ID)

	_, err = f.svc.End(ctx, f.actor(), &home)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.ReasonVisitInProgress, pkgerrors.ReasonOf(err))
	details := pkgerrors.As(err).Details().(map[string]any)
	assert.Equal(t, visit.ID.String(), details["visit_id"])

	active, err := f.svc.Active(ctx, f.actor())
	require.NoError(t, err)
	assert.Equal(t, session.ID, active.ID)
}

func TestEndSessionReportsDerivedStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.Start(ctx, f.actor(), home)
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, f.repo.AddShownTx(f.conn, []models.SessionDealerShown{
		{SessionID: session.ID, DealerRef: "a", Source: enums.DealerSourceInternal, DealerName: "A", ShownAt: now},
		{SessionID: session.ID, DealerRef: "b", Source: enums.DealerSourceInternal, DealerName: "B", ShownAt: now},
		{SessionID: session.ID, DealerRef: "c", Source: enums.DealerSourceExternal, DealerName: "C", ShownAt: now},
	}))
	require.NoError(t, f.repo.IncrementVisitsCompletedTx(f.conn, session.ID))

	summary, err := f.svc.End(ctx, f.actor(), &home)
	require.NoError(t, err)
	assert.False(t, summary.IsInMarket)
	assert.Equal(t, 3, summary.DealersShown)
	assert.Equal(t, 1, summary.VisitsCompleted)
	assert.Equal(t, 2, summary.LostVisits)
	assert.Nil(t, summary.ClosedBy)
	require.NotNil(t, summary.EndLocation)

	var rep models.Representative
	require.NoError(t, f.conn.First(&rep, "id = ?", f.rep.ID).Error)
	assert.False(t, rep.IsInMarket)
	assert.Nil(t, rep.ActiveSessionID)

	_, err = f.svc.End(ctx, f.actor(), nil)
	assert.Equal(t, pkgerrors.ReasonNoActiveSession, pkgerrors.ReasonOf(err))
	_, err = f.svc.Active(ctx, f.actor())
	assert.Equal(t, pkgerrors.ReasonNoActiveSession, pkgerrors.ReasonOf(err))
	assert.EqualValues(t, 1, testdb.CountEvents(t, f.conn, enums.EventMarketSessionEnded))
}

func TestUpdateLocationAccumulatesDistanceWhileInMarket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	idle, err := f.svc.UpdateLocation(ctx, f.actor(), home)
	require.NoError(t, err)
	assert.Nil(t, idle.SessionID)

	session, err := f.svc.Start(ctx, f.actor(), home)
	require.NoError(t, err)

	next := geo.Offset(home, 300, 400)
	update, err := f.svc.UpdateLocation(ctx, f.actor(), next)
	require.NoError(t, err)
	require.NotNil(t, update.SessionID)
	assert.Equal(t, session.ID, *update.SessionID)
	assert.InDelta(t, 500, update.DistanceAddedMeters, 2)

	stored, err := f.repo.FindByID(ctx, session.ID)
	require.NoError(t, err)
	assert.InDelta(t, 500, stored.TotalDistanceMeters, 2)

	var rep models.Representative
	require.NoError(t, f.conn.First(&rep, "id = ?", f.rep.ID).Error)
	current, ok := rep.CurrentLocation()
	require.True(t, ok)
	assert.InDelta(t, next.Lat, current.Lat, 1e-9)
}

func TestForceCloseAbandonsOpenVisit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.Start(ctx, f.actor(), home)
	require.NoError(t, err)
	visit := f.seedOpenVisit(t, session.ID)

	hod := authz.Actor{UserID: uuid.New(), CompanyID: f.company.ID, Role: enums.RoleHOD}
	summary, err := f.svc.ForceClose(ctx, hod, session.ID)
	require.NoError(t, err)
	require.NotNil(t, summary.ClosedBy)
	assert.Equal(t, hod.UserID, *summary.ClosedBy)
	require.NotNil(t, summary.AbandonedVisitID)
	assert.Equal(t, visit.ID, *summary.AbandonedVisitID)
	assert.Equal(t, 1, f.abandoner.calls)

	_, err = f.svc.ForceClose(ctx, hod, session.ID)
	assert.Equal(t, pkgerrors.ReasonNoActiveSession, pkgerrors.ReasonOf(err))
}

func TestForceCloseScopedToCompanyAndRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.Start(ctx, f.actor(), home)
	require.NoError(t, err)

	_, err = f.svc.ForceClose(ctx, f.actor(), session.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	outsider := authz.Actor{UserID: uuid.New(), CompanyID: uuid.New(), Role: enums.RoleAdmin}
	_, err = f.svc.ForceClose(ctx, outsider, session.ID)
	assert.Equal(t, pkgerrors.ReasonSessionNotFound, pkgerrors.ReasonOf(err))

	admin := authz.Actor{UserID: uuid.New(), CompanyID: f.company.ID, Role: enums.RoleAdmin}
	_, err = f.svc.ForceClose(ctx, admin, uuid.New())
	assert.Equal(t, pkgerrors.ReasonSessionNotFound, pkgerrors.ReasonOf(err))
}

func TestLostVisitsNeverNegative(t *testing.T) {
	cases := []struct{ shown, completed, want int }{
		{3, 1, 2},
		{1, 1, 0},
		{0, 2, 0},
	}
	for _, tc := range cases {
		if got := LostVisits(tc.shown, tc.completed); got != tc.want {
			t.Fatalf("LostVisits(%d, %d) = %d, want %d", tc.shown, tc.completed, got, tc.want)
		}
	}
}
