package visits

import (
	"context"
	"errors"
	"fmt"
	"strings"
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
	"github.com/angelmondragon/fieldops-backend/pkg/pagination"
	"github.com/angelmondragon/fieldops-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type visitRepository interface {
	CreateTx(tx *gorm.DB, visit *models.Visit) error
	FindByIDTx(tx *gorm.DB, id uuid.UUID) (*models.Visit, error)
	FindOpenByRepTx(tx *gorm.DB, repID uuid.UUID) (*models.Visit, error)
	CloseTx(tx *gorm.DB, id uuid.UUID, fields CloseFields) (bool, error)
	List(ctx context.Context, filter ListFilter) ([]models.Visit, error)
}

type sessionStore interface {
	FindOpenByRepTx(tx *gorm.DB, repID uuid.UUID) (*models.MarketSession, error)
	AddShownTx(tx *gorm.DB, rows []models.SessionDealerShown) error
	IncrementVisitsCompletedTx(tx *gorm.DB, id uuid.UUID) error
}

type dealerStore interface {
	FindByIDTx(tx *gorm.DB, companyID, id uuid.UUID) (*models.Dealer, error)
	UpdateVisitStatsTx(tx *gorm.DB, id uuid.UUID, visitedAt time.Time, outcome enums.VisitOutcome, nextDue time.Time) error
}

type leadStore interface {
	FindByIDTx(tx *gorm.DB, companyID, id uuid.UUID) (*models.PotentialDealer, error)
	FindByPlaceIDTx(tx *gorm.DB, companyID uuid.UUID, placeID string) (*models.PotentialDealer, error)
}

type companyStore interface {
	FindByIDTx(tx *gorm.DB, id uuid.UUID) (*models.Company, error)
}

type representativeLookup interface {
	FindByIDTx(tx *gorm.DB, id uuid.UUID) (*models.Representative, error)
}

// Service runs the check-in/check-out lifecycle.
type Service interface {
	CheckIn(ctx context.Context, actor authz.Actor, input CheckInInput) (*CheckInResult, error)
	CheckOut(ctx context.Context, actor authz.Actor, visitID uuid.UUID, input CheckOutInput) (*VisitDTO, error)
	ForceCheckout(ctx context.Context, actor authz.Actor, input ForceCheckoutInput) (*VisitDTO, error)
	RecordLeadVisit(ctx context.Context, actor authz.Actor, leadID uuid.UUID, input LeadVisitInput) (*VisitDTO, error)
	ListToday(ctx context.Context, actor authz.Actor, repID *uuid.UUID) ([]VisitDTO, error)
	ListHistory(ctx context.Context, actor authz.Actor, filter HistoryFilter) (pagination.Page[VisitDTO], error)
	ExportHistory(ctx context.Context, actor authz.Actor, filter HistoryFilter) ([]VisitDTO, error)
	AbandonOpenVisitTx(ctx context.Context, tx *gorm.DB, actor authz.Actor, repID uuid.UUID) (*models.Visit, error)
}

type Deps struct {
	Visits          visitRepository
	Sessions        sessionStore
	Dealers         dealerStore
	Leads           leadStore
	Companies       companyStore
	Representatives representativeLookup
	Tx              txRunner
	Outbox          outboxPublisher
	Locker          locks.Locker
	Metrics         *metrics.FieldMetrics
	Logger          *logger.Logger
	// DefaultRadiusMeters applies when a company has no visit_radius set.
	DefaultRadiusMeters int
}

type service struct {
	visits        visitRepository
	sessions      sessionStore
	dealers       dealerStore
	leads         leadStore
	companies     companyStore
	reps          representativeLookup
	tx            txRunner
	outbox        outboxPublisher
	locker        locks.Locker
	metrics       *metrics.FieldMetrics
	logg          *logger.Logger
	defaultRadius int
	now           func() time.Time
}

func NewService(deps Deps) (Service, error) {
	switch {
	case deps.Visits == nil:
		return nil, fmt.Errorf("visit repository required")
	case deps.Sessions == nil:
		return nil, fmt.Errorf("session store required")
	case deps.Dealers == nil:
		return nil, fmt.Errorf("dealer store required")
	case deps.Leads == nil:
		return nil, fmt.Errorf("lead store required")
	case deps.Companies == nil:
		return nil, fmt.Errorf("company store required")
	case deps.Representatives == nil:
		return nil, fmt.Errorf("representative lookup required")
	case deps.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case deps.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case deps.Locker == nil:
		return nil, fmt.Errorf("locker required")
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	radius := deps.DefaultRadiusMeters
	if radius <= 0 {
		radius = 500
	}
	return &service{
		visits:        deps.Visits,
		sessions:      deps.Sessions,
		dealers:       deps.Dealers,
		leads:         deps.Leads,
		companies:     deps.Companies,
		reps:          deps.Representatives,
		tx:            deps.Tx,
		outbox:        deps.Outbox,
		locker:        deps.Locker,
		metrics:       deps.Metrics,
		logg:          deps.Logger,
		defaultRadius: radius,
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

// target is the resolved subject of a check-in.
type target struct {
	ref       types.DealerRef
	source    enums.DealerSource
	name      string
	location  geo.Point
	dealerID  *uuid.UUID
	leadID    *uuid.UUID
	geofenced bool
}

func (s *service) CheckIn(ctx context.Context, actor authz.Actor, input CheckInInput) (*CheckInResult, error) {
	if err := authz.Require(actor, authz.CapFieldWork, authz.Self(actor)); err != nil {
		return nil, err
	}
	if err := input.Location.Validate(); err != nil {
		return nil, err
	}
	ref, err := parseRef(input.DealerRef)
	if err != nil {
		return nil, err
	}

	var result *CheckInResult
	err = locks.WithLock(ctx, s.locker, locks.ScopeRepresentative, actor.UserID.String(), func() error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			session, err := s.sessions.FindOpenByRepTx(tx, actor.UserID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.StateConflict(pkgerrors.ReasonNoActiveSession, "start a market session before checking in", nil)
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load open session")
			}
			if err := s.ensureNoOpenVisitTx(tx, actor.UserID); err != nil {
				return err
			}

			dest, err := s.resolveTargetTx(tx, actor.CompanyID, ref)
			if err != nil {
				return err
			}
			exact := geo.Haversine(input.Location, dest.location)
			distance := geo.DistanceMeters(input.Location, dest.location)
			if dest.geofenced {
				allowed, err := s.radiusTx(tx, actor.CompanyID)
				if err != nil {
					return err
				}
				// gate on the exact distance; the rounded value is for display
				if exact > float64(allowed) {
					return pkgerrors.Validation(pkgerrors.ReasonOutOfGeofenceRange, "too far from dealer location", map[string]any{
						"distance_m": distance,
						"allowed_m":  allowed,
					})
				}
			}

			now := s.now()
			visit := &models.Visit{
				ID:                 uuid.New(),
				CompanyID:          actor.CompanyID,
				RepresentativeID:   actor.UserID,
				MarketSessionID:    &session.ID,
				DealerRef:          dest.ref,
				Source:             dest.source,
				DealerID:           dest.dealerID,
				PotentialDealerID:  dest.leadID,
				DealerName:         dest.name,
				CheckInTime:        now,
				CheckInLat:         input.Location.Lat,
				CheckInLng:         input.Location.Lng,
				DistanceFromDealer: distance,
				CreatedAt:          now,
				UpdatedAt:          now,
			}
			if err := s.visits.CreateTx(tx, visit); err != nil {
				if db.IsUniqueViolation(err, "") {
					return pkgerrors.StateConflict(pkgerrors.ReasonVisitAlreadyOpen, "a visit is already open", nil)
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create visit")
			}
			if err := s.sessions.AddShownTx(tx, []models.SessionDealerShown{shownRow(session.ID, visit, now)}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record shown dealer")
			}
			if err := s.emitCheckedIn(ctx, tx, actor, visit); err != nil {
				return err
			}

			result = &CheckInResult{
				VisitID:        visit.ID,
				CheckInTime:    now,
				DistanceMeters: distance,
				DealerRef:      visit.DealerRef,
				DealerName:     visit.DealerName,
				Source:         visit.Source,
				SessionID:      session.ID,
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncTransition("visit_checked_in")
	logCtx := s.logg.WithFields(s.logCtx(ctx, actor), map[string]any{
		"visit_id":   result.VisitID.String(),
		"dealer_ref": result.DealerRef.String(),
		"distance_m": result.DistanceMeters,
	})
	s.logg.Info(logCtx, "visit.checked_in")
	return result, nil
}

func (s *service) CheckOut(ctx context.Context, actor authz.Actor, visitID uuid.UUID, input CheckOutInput) (*VisitDTO, error) {
	if err := authz.Require(actor, authz.CapFieldWork, authz.Self(actor)); err != nil {
		return nil, err
	}
	if input.Location != nil {
		if err := input.Location.Validate(); err != nil {
			return nil, err
		}
	}
	outcome, value, err := input.prepare()
	if err != nil {
		return nil, err
	}

	var closed *models.Visit
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		visit, err := s.visits.FindByIDTx(tx, visitID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return visitNotFound()
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load visit")
		}
		if visit.RepresentativeID != actor.UserID || visit.CompanyID != actor.CompanyID {
			return visitNotFound()
		}
		if !visit.IsOpen() {
			return alreadyClosed(visit)
		}

		company, err := s.companyTx(tx, actor.CompanyID)
		if err != nil {
			return err
		}
		if err := checkCatalog(input.OrderedItems, company.Config); err != nil {
			return err
		}

		now := s.now()
		fields := CloseFields{
			CheckOutTime:     now,
			Location:         input.Location,
			Outcome:          outcome,
			OrderValue:       value,
			OrderedItems:     input.OrderedItems,
			Notes:            trimmed(input.Notes),
			NextVisitDate:    input.NextVisitDate,
			ContactName:      trimmed(input.ContactName),
			ContactPhone:     trimmed(input.ContactPhone),
			ContactEmail:     trimmed(input.ContactEmail),
			TimeSpentMinutes: minutesBetween(visit.CheckInTime, now),
		}
		ok, err := s.visits.CloseTx(tx, visit.ID, fields)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close visit")
		}
		if !ok {
			current, err := s.visits.FindByIDTx(tx, visit.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload visit")
			}
			return alreadyClosed(current)
		}

		if visit.MarketSessionID != nil {
			if err := s.sessions.IncrementVisitsCompletedTx(tx, *visit.MarketSessionID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment visits completed")
			}
		}
		if err := s.touchDealerTx(tx, actor.CompanyID, visit.DealerID, now, outcome, input.NextVisitDate); err != nil {
			return err
		}

		closed, err = s.visits.FindByIDTx(tx, visit.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload visit")
		}
		return s.emitCheckedOut(ctx, tx, actor, closed)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncTransition("visit_checked_out")
	logCtx := s.logg.WithFields(s.logCtx(ctx, actor), map[string]any{
		"visit_id": closed.ID.String(),
		"outcome":  string(outcome),
	})
	s.logg.Info(logCtx, "visit.checked_out")
	dto := FromModel(closed)
	return &dto, nil
}

func (s *service) ensureNoOpenVisitTx(tx *gorm.DB, repID uuid.UUID) error {
	open, err := s.visits.FindOpenByRepTx(tx, repID)
	if err == nil {
		return pkgerrors.StateConflict(pkgerrors.ReasonVisitAlreadyOpen, "a visit is already open", map[string]any{
			"visit_id": open.ID.String(),
		})
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load open visit")
	}
	return nil
}

func (s *service) resolveTargetTx(tx *gorm.DB, companyID uuid.UUID, ref types.DealerRef) (*target, error) {
	if placeID, ok := ref.PlaceID(); ok {
		lead, err := s.leads.FindByPlaceIDTx(tx, companyID, placeID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.NotFound(pkgerrors.ReasonLeadNotFound, "lead not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load lead")
		}
		id := lead.ID
		return &target{
			ref:      lead.Ref(),
			source:   enums.DealerSourceExternal,
			name:     lead.PlaceName,
			location: lead.Location(),
			leadID:   &id,
		}, nil
	}

	dealerID, err := ref.DealerID()
	if err != nil {
		return nil, invalidRef(ref.String())
	}
	dealer, err := s.dealers.FindByIDTx(tx, companyID, dealerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.NotFound(pkgerrors.ReasonDealerNotFound, "dealer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load dealer")
	}
	id := dealer.ID
	return &target{
		ref:       types.InternalRef(dealer.ID),
		source:    enums.DealerSourceInternal,
		name:      dealer.Name,
		location:  dealer.Location(),
		dealerID:  &id,
		geofenced: true,
	}, nil
}

func (s *service) companyTx(tx *gorm.DB, companyID uuid.UUID) (*models.Company, error) {
	company, err := s.companies.FindByIDTx(tx, companyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "company not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load company")
	}
	return company, nil
}

func (s *service) radiusTx(tx *gorm.DB, companyID uuid.UUID) (int, error) {
	company, err := s.companyTx(tx, companyID)
	if err != nil {
		return 0, err
	}
	if company.Config.VisitRadiusMeters <= 0 {
		return s.defaultRadius, nil
	}
	return company.Config.VisitRadiusMeters, nil
}

// touchDealerTx denormalizes the visit onto an internal dealer. A requested
// next visit date wins over the dealer's cadence. Refs to deactivated dealers
// are skipped.
func (s *service) touchDealerTx(tx *gorm.DB, companyID uuid.UUID, dealerID *uuid.UUID, at time.Time, outcome enums.VisitOutcome, requested *time.Time) error {
	if dealerID == nil {
		return nil
	}
	dealer, err := s.dealers.FindByIDTx(tx, companyID, *dealerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load dealer")
	}
	nextDue := at.AddDate(0, 0, dealer.VisitFrequency.IntervalDays())
	if requested != nil {
		nextDue = requested.UTC()
	}
	if err := s.dealers.UpdateVisitStatsTx(tx, dealer.ID, at, outcome, nextDue); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update dealer visit stats")
	}
	return nil
}

func (s *service) emitCheckedIn(ctx context.Context, tx *gorm.DB, actor authz.Actor, visit *models.Visit) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventVisitCheckedIn,
		AggregateType: enums.AggregateVisit,
		AggregateID:   visit.ID,
		Actor:         actor.OutboxRef(),
		OccurredAt:    visit.CheckInTime,
		Data: payloads.VisitCheckedInEvent{
			VisitID:          visit.ID,
			CompanyID:        visit.CompanyID,
			RepresentativeID: visit.RepresentativeID,
			SessionID:        visit.MarketSessionID,
			DealerRef:        visit.DealerRef,
			Source:           visit.Source,
			CheckInTime:      visit.CheckInTime,
			DistanceMeters:   visit.DistanceFromDealer,
		},
	})
}

func (s *service) emitCheckedOut(ctx context.Context, tx *gorm.DB, actor authz.Actor, visit *models.Visit) error {
	event := payloads.VisitCheckedOutEvent{
		VisitID:          visit.ID,
		CompanyID:        visit.CompanyID,
		RepresentativeID: visit.RepresentativeID,
		SessionID:        visit.MarketSessionID,
		DealerRef:        visit.DealerRef,
		OrderValue:       visit.OrderValue,
		FastPath:         visit.FastPath,
	}
	if visit.Outcome != nil {
		event.Outcome = *visit.Outcome
	}
	if visit.CheckOutTime != nil {
		event.CheckOutTime = *visit.CheckOutTime
	}
	if visit.TimeSpentMinutes != nil {
		event.TimeSpentMinutes = *visit.TimeSpentMinutes
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventVisitCheckedOut,
		AggregateType: enums.AggregateVisit,
		AggregateID:   visit.ID,
		Actor:         actor.OutboxRef(),
		OccurredAt:    event.CheckOutTime,
		Data:          event,
	})
}

func (s *service) logCtx(ctx context.Context, actor authz.Actor) context.Context {
	ctx = s.logg.WithCompanyID(ctx, actor.CompanyID.String())
	return s.logg.WithRepresentativeID(ctx, actor.UserID.String())
}

func parseRef(raw string) (types.DealerRef, error) {
	ref := types.DealerRef(strings.TrimSpace(raw))
	if ref == "" {
		return "", invalidRef(raw)
	}
	if ref.IsExternal() {
		if _, ok := ref.PlaceID(); !ok {
			return "", invalidRef(raw)
		}
		return ref, nil
	}
	if _, err := ref.DealerID(); err != nil {
		return "", invalidRef(raw)
	}
	return ref, nil
}

func shownRow(sessionID uuid.UUID, visit *models.Visit, at time.Time) models.SessionDealerShown {
	return models.SessionDealerShown{
		SessionID:      sessionID,
		DealerRef:      visit.DealerRef,
		Source:         visit.Source,
		DealerName:     visit.DealerName,
		DistanceMeters: visit.DistanceFromDealer,
		ShownAt:        at,
	}
}

func minutesBetween(start, end time.Time) int {
	if !end.After(start) {
		return 0
	}
	return int(end.Sub(start) / time.Minute)
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	out := strings.TrimSpace(*v)
	if out == "" {
		return nil
	}
	return &out
}

func invalidRef(raw string) error {
	return pkgerrors.Validation(pkgerrors.ReasonInvalidDealerRef, "dealer_ref must be a dealer id or google_<place_id>", map[string]any{
		"dealer_ref": raw,
	})
}

func visitNotFound() error {
	return pkgerrors.NotFound(pkgerrors.ReasonVisitNotFound, "visit not found")
}

func alreadyClosed(visit *models.Visit) error {
	state := map[string]any{"visit_id": visit.ID.String()}
	if visit.CheckOutTime != nil {
		state["check_out_time"] = visit.CheckOutTime.UTC()
	}
	return pkgerrors.StateConflict(pkgerrors.ReasonVisitAlreadyClosed, "visit is already closed", state)
}
