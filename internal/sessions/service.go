package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fieldops-backend/internal/authz"
	"github.com/angelmondragon/fieldops-backend/pkg/db"
	"github.com/angelmondragon/fieldops-backend/pkg/db/models"
	"github.com/angelmondragon/fieldops-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldops-backend/pkg/errors"
	"github.com/angelmondragon/fieldops-backend/pkg/geo"
	"github.com/angelmondragon/fieldops-backend/pkg/locks"
	"github.com/angelmondragon/fieldops-backend/pkg/logger"
	"github.com/angelmondragon/fieldops-backend/pkg/metrics"
	"github.com/angelmondragon/fieldops-backend/pkg/outbox"
	"github.com/angelmondragon/fieldops-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type sessionRepository interface {
	CreateTx(tx *gorm.DB, session *models.MarketSession) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.MarketSession, error)
	FindByIDTx(tx *gorm.DB, id uuid.UUID) (*models.MarketSession, error)
	FindOpenByRep(ctx context.Context, repID uuid.UUID) (*models.MarketSession, error)
	FindOpenByRepTx(tx *gorm.DB, repID uuid.UUID) (*models.MarketSession, error)
	CloseTx(tx *gorm.DB, id uuid.UUID, endTime time.Time, endLocation *geo.Point, closedBy *uuid.UUID) (bool, error)
	CountShownTx(tx *gorm.DB, sessionID uuid.UUID) (int64, error)
	AddDistanceTx(tx *gorm.DB, id uuid.UUID, meters float64) error
}

type representativeStore interface {
	FindByIDTx(tx *gorm.DB, id uuid.UUID) (*models.Representative, error)
	SetInMarketTx(tx *gorm.DB, id uuid.UUID, sessionID *uuid.UUID, location *geo.Point, at time.Time) error
	UpdateLocationTx(tx *gorm.DB, id uuid.UUID, location geo.Point, at time.Time) error
}

type openVisitFinder interface {
	FindOpenByRepTx(tx *gorm.DB, repID uuid.UUID) (*models.Visit, error)
}

// visitAbandoner closes a representative's open visit as abandoned inside
// the caller's transaction. It returns nil when no visit is open.
type visitAbandoner interface {
	AbandonOpenVisitTx(ctx context.Context, tx *gorm.DB, actor authz.Actor, repID uuid.UUID) (*models.Visit, error)
}

// Service drives the market session state machine.
type Service interface {
	Start(ctx context.Context, actor authz.Actor, location geo.Point) (*SessionDTO, error)
	End(ctx context.Context, actor authz.Actor, location *geo.Point) (*Summary, error)
	UpdateLocation(ctx context.Context, actor authz.Actor, location geo.Point) (*LocationUpdate, error)
	ForceClose(ctx context.Context, actor authz.Actor, sessionID uuid.UUID) (*Summary, error)
	Active(ctx context.Context, actor authz.Actor) (*SessionDTO, error)
}

// Deps groups the collaborators of the session service.
type Deps struct {
	Sessions        sessionRepository
	Representatives representativeStore
	Visits          openVisitFinder
	Abandoner       visitAbandoner
	Tx              txRunner
	Outbox          outboxPublisher
	Locker          locks.Locker
	Metrics         *metrics.FieldMetrics
	Logger          *logger.Logger
}

type service struct {
	sessions  sessionRepository
	reps      representativeStore
	visits    openVisitFinder
	abandoner visitAbandoner
	tx        txRunner
	outbox    outboxPublisher
	locker    locks.Locker
	metrics   *metrics.FieldMetrics
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(deps Deps) (Service, error) {
	switch {
	case deps.Sessions == nil:
		return nil, fmt.Errorf("session repository required")
	case deps.Representatives == nil:
		return nil, fmt.Errorf("representative store required")
	case deps.Visits == nil:
		return nil, fmt.Errorf("open visit finder required")
	case deps.Abandoner == nil:
		return nil, fmt.Errorf("visit abandoner required")
	case deps.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case deps.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case deps.Locker == nil:
		return nil, fmt.Errorf("locker required")
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		sessions:  deps.Sessions,
		reps:      deps.Representatives,
		visits:    deps.Visits,
		abandoner: deps.Abandoner,
		tx:        deps.Tx,
		outbox:    deps.Outbox,
		locker:    deps.Locker,
		metrics:   deps.Metrics,
		logg:      deps.Logger,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Start(ctx context.Context, actor authz.Actor, location geo.Point) (*SessionDTO, error) {
	if err := authz.Require(actor, authz.CapFieldWork, authz.Self(actor)); err != nil {
		return nil, err
	}
	if err := location.Validate(); err != nil {
		return nil, err
	}

	var session *models.MarketSession
	err := locks.WithLock(ctx, s.locker, locks.ScopeRepresentative, actor.UserID.String(), func() error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			rep, err := s.reps.FindByIDTx(tx, actor.UserID)
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load representative")
			}
			if rep == nil || !rep.IsActive {
				return pkgerrors.New(pkgerrors.CodeUnauthorized, "representative inactive")
			}

			open, err := s.sessions.FindOpenByRepTx(tx, actor.UserID)
			if err == nil {
				return alreadyInMarket(open.ID)
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load open session")
			}

			now := s.now()
			session = &models.MarketSession{
				ID:               uuid.New(),
				CompanyID:        actor.CompanyID,
				RepresentativeID: actor.UserID,
				StartTime:        now,
				StartLat:         location.Lat,
				StartLng:         location.Lng,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			if err := s.sessions.CreateTx(tx, session); err != nil {
				if db.IsUniqueViolation(err, "") {
					return alreadyInMarket(uuid.Nil)
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create session")
			}
			if err := s.reps.SetInMarketTx(tx, actor.UserID, &session.ID, &location, now); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark representative in market")
			}
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventMarketSessionStarted,
				AggregateType: enums.AggregateMarketSession,
				AggregateID:   session.ID,
				Actor:         actor.OutboxRef(),
				OccurredAt:    now,
				Data: payloads.MarketSessionStartedEvent{
					SessionID:        session.ID,
					CompanyID:        actor.CompanyID,
					RepresentativeID: actor.UserID,
					StartTime:        now,
					StartLocation:    location,
				},
			})
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncTransition("market_started")
	s.logg.Info(s.logCtx(ctx, actor, session.ID), "market.started")
	dto := FromModel(session)
	return &dto, nil
}

func (s *service) End(ctx context.Context, actor authz.Actor, location *geo.Point) (*Summary, error) {
	if err := authz.Require(actor, authz.CapFieldWork, authz.Self(actor)); err != nil {
		return nil, err
	}
	if location != nil {
		if err := location.Validate(); err != nil {
			return nil, err
		}
	}

	var summary *Summary
	err := locks.WithLock(ctx, s.locker, locks.ScopeRepresentative, actor.UserID.String(), func() error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			open, err := s.sessions.FindOpenByRepTx(tx, actor.UserID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return noActiveSession()
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load open session")
			}

			visit, err := s.visits.FindOpenByRepTx(tx, actor.UserID)
			if err == nil {
				return pkgerrors.StateConflict(pkgerrors.ReasonVisitInProgress, "check out of the open visit before ending the market session", map[string]any{
					"session_id": open.ID.String(),
					"visit_id":   visit.ID.String(),
				})
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load open visit")
			}

			summary, err = s.closeTx(ctx, tx, actor, open, location, nil)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncTransition("market_ended")
	s.logg.Info(s.logCtx(ctx, actor, summary.ID), "market.ended")
	return summary, nil
}

func (s *service) ForceClose(ctx context.Context, actor authz.Actor, sessionID uuid.UUID) (*Summary, error) {
	if err := authz.Require(actor, authz.CapForceCloseSession, authz.Scope{CompanyID: actor.CompanyID}); err != nil {
		return nil, err
	}

	target, err := s.loadVisible(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	if !target.IsOpen() {
		return nil, closedSession(target)
	}

	var summary *Summary
	err = locks.WithLock(ctx, s.locker, locks.ScopeRepresentative, target.RepresentativeID.String(), func() error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			session, err := s.sessions.FindByIDTx(tx, sessionID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload session")
			}
			if !session.IsOpen() {
				return closedSession(session)
			}

			abandoned, err := s.abandoner.AbandonOpenVisitTx(ctx, tx, actor, session.RepresentativeID)
			if err != nil {
				return err
			}
			closedBy := actor.UserID
			summary, err = s.closeTx(ctx, tx, actor, session, nil, &closedBy)
			if err != nil {
				return err
			}
			if abandoned != nil {
				id := abandoned.ID
				summary.AbandonedVisitID = &id
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncTransition("market_force_closed")
	logCtx := s.logg.WithField(s.logCtx(ctx, actor, summary.ID), "target_representative_id", target.RepresentativeID.String())
	s.logg.Info(logCtx, "market.force_closed")
	return summary, nil
}

// closeTx ends session and clears the in-market projection. closedBy is nil
// when the representative closes their own session.
func (s *service) closeTx(ctx context.Context, tx *gorm.DB, actor authz.Actor, session *models.MarketSession, location *geo.Point, closedBy *uuid.UUID) (*Summary, error) {
	now := s.now()
	closed, err := s.sessions.CloseTx(tx, session.ID, now, location, closedBy)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close session")
	}
	if !closed {
		return nil, noActiveSession()
	}
	if err := s.reps.SetInMarketTx(tx, session.RepresentativeID, nil, location, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear in-market flag")
	}

	shown, err := s.sessions.CountShownTx(tx, session.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count shown dealers")
	}
	reloaded, err := s.sessions.FindByIDTx(tx, session.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload session")
	}

	summary := &Summary{
		SessionDTO:   FromModel(reloaded),
		DealersShown: int(shown),
		LostVisits:   LostVisits(int(shown), reloaded.VisitsCompleted),
	}
	err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventMarketSessionEnded,
		AggregateType: enums.AggregateMarketSession,
		AggregateID:   session.ID,
		Actor:         actor.OutboxRef(),
		OccurredAt:    now,
		Data: payloads.MarketSessionEndedEvent{
			SessionID:           session.ID,
			CompanyID:           session.CompanyID,
			RepresentativeID:    session.RepresentativeID,
			StartTime:           reloaded.StartTime,
			EndTime:             now,
			DealersShown:        summary.DealersShown,
			VisitsCompleted:     reloaded.VisitsCompleted,
			LostVisits:          summary.LostVisits,
			TotalDistanceMeters: reloaded.TotalDistanceMeters,
			ClosedBy:            closedBy,
		},
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

func (s *service) UpdateLocation(ctx context.Context, actor authz.Actor, location geo.Point) (*LocationUpdate, error) {
	if err := authz.Require(actor, authz.CapFieldWork, authz.Self(actor)); err != nil {
		return nil, err
	}
	if err := location.Validate(); err != nil {
		return nil, err
	}

	out := &LocationUpdate{Location: location}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		rep, err := s.reps.FindByIDTx(tx, actor.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.NotFound(pkgerrors.ReasonRepresentativeNotFound, "representative not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load representative")
		}

		now := s.now()
		out.RecordedAt = now
		session, err := s.sessions.FindOpenByRepTx(tx, actor.UserID)
		switch {
		case err == nil:
			if previous, ok := rep.CurrentLocation(); ok {
				out.DistanceAddedMeters = geo.Haversine(previous, location)
			}
			if err := s.sessions.AddDistanceTx(tx, session.ID, out.DistanceAddedMeters); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "accumulate distance")
			}
			total := session.TotalDistanceMeters + out.DistanceAddedMeters
			id := session.ID
			out.SessionID = &id
			out.TotalDistanceMeters = &total
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load open session")
		}

		if err := s.reps.UpdateLocationTx(tx, actor.UserID, location, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store location")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) Active(ctx context.Context, actor authz.Actor) (*SessionDTO, error) {
	if err := authz.Require(actor, authz.CapViewSession, authz.Self(actor)); err != nil {
		return nil, err
	}
	session, err := s.sessions.FindOpenByRep(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, noActiveSession()
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load open session")
	}
	dto := FromModel(session)
	return &dto, nil
}

func (s *service) loadVisible(ctx context.Context, actor authz.Actor, sessionID uuid.UUID) (*models.MarketSession, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.NotFound(pkgerrors.ReasonSessionNotFound, "session not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load session")
	}
	if session.CompanyID != actor.CompanyID {
		return nil, pkgerrors.NotFound(pkgerrors.ReasonSessionNotFound, "session not found")
	}
	return session, nil
}

func (s *service) logCtx(ctx context.Context, actor authz.Actor, sessionID uuid.UUID) context.Context {
	ctx = s.logg.WithCompanyID(ctx, actor.CompanyID.String())
	ctx = s.logg.WithRepresentativeID(ctx, actor.UserID.String())
	return s.logg.WithSessionID(ctx, sessionID.String())
}

func alreadyInMarket(sessionID uuid.UUID) error {
	state := map[string]any{}
	if sessionID != uuid.Nil {
		state["session_id"] = sessionID.String()
	}
	return pkgerrors.StateConflict(pkgerrors.ReasonAlreadyInMarket, "representative is already in market", state)
}

func noActiveSession() error {
	return pkgerrors.StateConflict(pkgerrors.ReasonNoActiveSession, "no active market session", nil)
}

func closedSession(session *models.MarketSession) error {
	state := map[string]any{"session_id": session.ID.String()}
	if session.EndTime != nil {
		state["end_time"] = session.EndTime.UTC()
	}
	return pkgerrors.StateConflict(pkgerrors.ReasonNoActiveSession, "session is already closed", state)
}
