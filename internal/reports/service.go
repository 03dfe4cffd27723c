package reports

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/fieldops-backend/internal/authz"
	"github.com/angelmondragon/fieldops-backend/internal/sessions"
	"github.com/angelmondragon/fieldops-backend/pkg/db/models"
	"github.com/angelmondragon/fieldops-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldops-backend/pkg/errors"
	"github.com/angelmondragon/fieldops-backend/pkg/types"
)

const (
	lostVisitsLimit    = 100
	lostSessionsLimit  = 50
	defaultDailyTarget = 10
)

type sessionReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.MarketSession, error)
	CountShown(ctx context.Context, sessionID uuid.UUID) (int64, error)
	ListShown(ctx context.Context, sessionID uuid.UUID) ([]models.SessionDealerShown, error)
}

type rollupReader interface {
	VisitedRefs(ctx context.Context, repID uuid.UUID, from, to time.Time) (map[types.DealerRef]struct{}, error)
	CompletedTotals(ctx context.Context, companyID uuid.UUID, from, to time.Time) (int64, decimal.Decimal, error)
	RepVisitStats(ctx context.Context, companyID uuid.UUID, repID *uuid.UUID) (map[uuid.UUID]repVisitRow, error)
	LostOutcomeVisits(ctx context.Context, companyID uuid.UUID, limit int) ([]models.Visit, error)
	RecentClosedSessions(ctx context.Context, companyID uuid.UUID, limit int) ([]sessionLostRow, error)
}

type representativeReader interface {
	List(ctx context.Context, companyID uuid.UUID, role *enums.Role) ([]models.Representative, error)
	CountActiveSalesReps(ctx context.Context, companyID uuid.UUID) (int64, int64, error)
}

type dealerCounter interface {
	CountActive(ctx context.Context, companyID uuid.UUID) (int64, error)
}

type companyReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Company, error)
}

// Service derives session analytics and the management rollups. Every
// figure is recomputed from visits and shown-dealer rows on read.
type Service interface {
	SessionStats(ctx context.Context, actor authz.Actor, sessionID uuid.UUID) (*SessionStats, error)
	SessionDetail(ctx context.Context, actor authz.Actor, sessionID uuid.UUID) (*SessionDetail, error)
	Dashboard(ctx context.Context, actor authz.Actor) (*Dashboard, error)
	ExecutivePerformance(ctx context.Context, actor authz.Actor, repID *uuid.UUID) ([]ExecutivePerformance, error)
	LostVisits(ctx context.Context, actor authz.Actor) (*LostVisitsReport, error)
}

type Deps struct {
	Sessions        sessionReader
	Rollups         rollupReader
	Representatives representativeReader
	Dealers         dealerCounter
	Companies       companyReader
}

type service struct {
	sessions  sessionReader
	rollups   rollupReader
	reps      representativeReader
	dealers   dealerCounter
	companies companyReader
	now       func() time.Time
}

func NewService(deps Deps) (Service, error) {
	switch {
	case deps.Sessions == nil:
		return nil, fmt.Errorf("session reader required")
	case deps.Rollups == nil:
		return nil, fmt.Errorf("rollup reader required")
	case deps.Representatives == nil:
		return nil, fmt.Errorf("representative reader required")
	case deps.Dealers == nil:
		return nil, fmt.Errorf("dealer counter required")
	case deps.Companies == nil:
		return nil, fmt.Errorf("company reader required")
	}
	return &service{
		sessions:  deps.Sessions,
		rollups:   deps.Rollups,
		reps:      deps.Representatives,
		dealers:   deps.Dealers,
		companies: deps.Companies,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) SessionStats(ctx context.Context, actor authz.Actor, sessionID uuid.UUID) (*SessionStats, error) {
	session, err := s.visibleSession(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	shown, err := s.sessions.CountShown(ctx, session.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count shown dealers")
	}
	stats := statsOf(session, int(shown))
	return &stats, nil
}

func (s *service) SessionDetail(ctx context.Context, actor authz.Actor, sessionID uuid.UUID) (*SessionDetail, error) {
	session, err := s.visibleSession(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	shown, err := s.sessions.ListShown(ctx, session.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list shown dealers")
	}

	windowEnd := s.now()
	if session.EndTime != nil {
		windowEnd = *session.EndTime
	}
	visited, err := s.rollups.VisitedRefs(ctx, session.RepresentativeID, session.StartTime, windowEnd)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load visited dealers")
	}

	dealers := make([]ShownDealer, 0, len(shown))
	for _, row := range shown {
		_, ok := visited[row.DealerRef]
		dealers = append(dealers, ShownDealer{
			DealerRef:      row.DealerRef,
			Source:         row.Source,
			DealerName:     row.DealerName,
			DistanceMeters: row.DistanceMeters,
			ShownAt:        row.ShownAt,
			IsVisited:      ok,
		})
	}

	return &SessionDetail{
		SessionStats: statsOf(session, len(shown)),
		StartTime:    session.StartTime,
		EndTime:      session.EndTime,
		Dealers:      dealers,
	}, nil
}

func (s *service) Dashboard(ctx context.Context, actor authz.Actor) (*Dashboard, error) {
	if err := authz.Require(actor, authz.CapViewReports, authz.Scope{CompanyID: actor.CompanyID}); err != nil {
		return nil, err
	}

	company, err := s.companies.FindByID(ctx, actor.CompanyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "company not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load company")
	}
	totalDealers, err := s.dealers.CountActive(ctx, actor.CompanyID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count dealers")
	}
	totalReps, activeReps, err := s.reps.CountActiveSalesReps(ctx, actor.CompanyID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count representatives")
	}

	start := startOfDay(s.now())
	completed, orders, err := s.rollups.CompletedTotals(ctx, actor.CompanyID, start, start.AddDate(0, 0, 1))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum today's visits")
	}

	perRep := company.Config.VisitsPerDayTarget
	if perRep <= 0 {
		perRep = defaultDailyTarget
	}
	target := totalReps * int64(perRep)

	return &Dashboard{
		TotalDealers:    totalDealers,
		TotalReps:       totalReps,
		ActiveReps:      activeReps,
		VisitsToday:     completed,
		TargetVisits:    target,
		OrderValueToday: orders,
		CompletionRate:  percent(completed, target),
	}, nil
}

func (s *service) ExecutivePerformance(ctx context.Context, actor authz.Actor, repID *uuid.UUID) ([]ExecutivePerformance, error) {
	if err := authz.Require(actor, authz.CapViewTeam, authz.Scope{CompanyID: actor.CompanyID}); err != nil {
		return nil, err
	}

	role := enums.RoleSalesRep
	reps, err := s.reps.List(ctx, actor.CompanyID, &role)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list representatives")
	}
	stats, err := s.rollups.RepVisitStats(ctx, actor.CompanyID, repID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate visits")
	}

	out := make([]ExecutivePerformance, 0, len(reps))
	for _, rep := range reps {
		if repID != nil && rep.ID != *repID {
			continue
		}
		row := ExecutivePerformance{
			RepresentativeID:   rep.ID,
			Name:               rep.Name,
			EmployeeCode:       rep.EmployeeCode,
			TotalOrders:        decimal.Zero,
			IsInMarket:         rep.IsInMarket,
			LastLocationUpdate: rep.LastLocationUpdate,
		}
		if loc, ok := rep.CurrentLocation(); ok {
			row.CurrentLocation = &loc
		}
		if agg, ok := stats[rep.ID]; ok {
			row.TotalVisits = agg.Total
			row.CompletedVisits = agg.Completed
			if agg.Orders.Valid {
				row.TotalOrders = agg.Orders.Decimal
			}
			if agg.AvgMinutes != nil {
				row.AvgMinutesPerVisit = math.Round(*agg.AvgMinutes*10) / 10
			}
		}
		out = append(out, row)
	}
	if repID != nil && len(out) == 0 {
		return nil, pkgerrors.NotFound(pkgerrors.ReasonRepresentativeNotFound, "representative not found")
	}
	return out, nil
}

func (s *service) LostVisits(ctx context.Context, actor authz.Actor) (*LostVisitsReport, error) {
	if err := authz.Require(actor, authz.CapViewReports, authz.Scope{CompanyID: actor.CompanyID}); err != nil {
		return nil, err
	}

	visits, err := s.rollups.LostOutcomeVisits(ctx, actor.CompanyID, lostVisitsLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list lost visits")
	}
	sessionRows, err := s.rollups.RecentClosedSessions(ctx, actor.CompanyID, lostSessionsLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list closed sessions")
	}

	report := &LostVisitsReport{
		Visits:   make([]LostVisit, 0, len(visits)),
		Sessions: make([]SessionLost, 0, len(sessionRows)),
	}
	for _, v := range visits {
		report.Visits = append(report.Visits, LostVisit{
			VisitID:          v.ID,
			RepresentativeID: v.RepresentativeID,
			DealerRef:        v.DealerRef,
			DealerName:       v.DealerName,
			CheckOutTime:     v.CheckOutTime,
			Notes:            v.Notes,
		})
	}
	for _, row := range sessionRows {
		lost := sessions.LostVisits(int(row.DealersShown), row.VisitsCompleted)
		report.TotalSessionLost += lost
		report.Sessions = append(report.Sessions, SessionLost{
			SessionID:        row.ID,
			RepresentativeID: row.RepresentativeID,
			StartTime:        row.StartTime,
			EndTime:          row.EndTime,
			DealersShown:     int(row.DealersShown),
			VisitsCompleted:  row.VisitsCompleted,
			LostVisits:       lost,
		})
	}
	return report, nil
}

// visibleSession loads a session the actor may read. Sessions outside the
// actor's scope are reported as missing.
func (s *service) visibleSession(ctx context.Context, actor authz.Actor, sessionID uuid.UUID) (*models.MarketSession, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sessionNotFound()
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load session")
	}
	scope := authz.Scope{CompanyID: session.CompanyID, RepresentativeID: session.RepresentativeID}
	if !authz.Allowed(actor, authz.CapViewSession, scope) {
		return nil, sessionNotFound()
	}
	return session, nil
}

func statsOf(session *models.MarketSession, shown int) SessionStats {
	return SessionStats{
		SessionID:        session.ID,
		RepresentativeID: session.RepresentativeID,
		IsOpen:           session.IsOpen(),
		DealersShown:     shown,
		VisitsCompleted:  session.VisitsCompleted,
		LostVisits:       sessions.LostVisits(shown, session.VisitsCompleted),
	}
}

func percent(part, whole int64) float64 {
	if whole <= 0 {
		return 0
	}
	return math.Round(float64(part)/float64(whole)*10000) / 100
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func sessionNotFound() error {
	return pkgerrors.NotFound(pkgerrors.ReasonSessionNotFound, "session not found")
}
