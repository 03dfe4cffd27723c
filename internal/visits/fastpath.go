package visits

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fieldops-backend/internal/authz"
	"github.com/angelmondragon/fieldops-backend/pkg/db"
	"github.com/angelmondragon/fieldops-backend/pkg/db/models"
	"github.com/angelmondragon/fieldops-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldops-backend/pkg/errors"
	"github.com/angelmondragon/fieldops-backend/pkg/geo"
	"github.com/angelmondragon/fieldops-backend/pkg/locks"
)

// RecordLeadVisit checks in and out of an assigned lead in one step. No
// session or geofence is required; the distance is kept for audit.
func (s *service) RecordLeadVisit(ctx context.Context, actor authz.Actor, leadID uuid.UUID, input LeadVisitInput) (*VisitDTO, error) {
	if err := authz.Require(actor, authz.CapFieldWork, authz.Self(actor)); err != nil {
		return nil, err
	}
	if err := input.Location.Validate(); err != nil {
		return nil, err
	}
	outcome, value, err := input.prepare()
	if err != nil {
		return nil, err
	}

	var visit *models.Visit
	err = locks.WithLock(ctx, s.locker, locks.ScopeRepresentative, actor.UserID.String(), func() error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			lead, err := s.leads.FindByIDTx(tx, actor.CompanyID, leadID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.NotFound(pkgerrors.ReasonLeadNotFound, "lead not found")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load lead")
			}
			if !lead.IsAssigned || lead.AssignedTo == nil || *lead.AssignedTo != actor.UserID {
				return pkgerrors.Forbidden(pkgerrors.ReasonLeadNotAssigned, "lead is not assigned to you")
			}
			if err := s.ensureNoOpenVisitTx(tx, actor.UserID); err != nil {
				return err
			}

			company, err := s.companyTx(tx, actor.CompanyID)
			if err != nil {
				return err
			}
			if err := checkCatalog(input.OrderedItems, company.Config); err != nil {
				return err
			}

			var session *models.MarketSession
			open, err := s.sessions.FindOpenByRepTx(tx, actor.UserID)
			switch {
			case err == nil:
				session = open
			case errors.Is(err, gorm.ErrRecordNotFound):
			default:
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load open session")
			}

			now := s.now()
			leadRef := lead.ID
			zero := 0
			visit = &models.Visit{
				ID:                 uuid.New(),
				CompanyID:          actor.CompanyID,
				RepresentativeID:   actor.UserID,
				DealerRef:          lead.Ref(),
				Source:             enums.DealerSourceExternal,
				PotentialDealerID:  &leadRef,
				DealerName:         lead.PlaceName,
				CheckInTime:        now,
				CheckInLat:         input.Location.Lat,
				CheckInLng:         input.Location.Lng,
				DistanceFromDealer: geo.DistanceMeters(input.Location, lead.Location()),
				CheckOutTime:       &now,
				CheckOutLat:        &input.Location.Lat,
				CheckOutLng:        &input.Location.Lng,
				Outcome:            &outcome,
				OrderValue:         value,
				OrderedItems:       input.OrderedItems,
				Notes:              trimmed(input.Notes),
				NextVisitDate:      input.NextVisitDate,
				ContactName:        trimmed(input.ContactName),
				ContactPhone:       trimmed(input.ContactPhone),
				ContactEmail:       trimmed(input.ContactEmail),
				TimeSpentMinutes:   &zero,
				FastPath:           true,
				CreatedAt:          now,
				UpdatedAt:          now,
			}
			if session != nil {
				visit.MarketSessionID = &session.ID
			}
			if err := s.visits.CreateTx(tx, visit); err != nil {
				if db.IsUniqueViolation(err, "") {
					return pkgerrors.StateConflict(pkgerrors.ReasonVisitAlreadyOpen, "a visit is already open", nil)
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create visit")
			}

			if session != nil {
				if err := s.sessions.AddShownTx(tx, []models.SessionDealerShown{shownRow(session.ID, visit, now)}); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record shown dealer")
				}
				if err := s.sessions.IncrementVisitsCompletedTx(tx, session.ID); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment visits completed")
				}
			}
			if err := s.emitCheckedIn(ctx, tx, actor, visit); err != nil {
				return err
			}
			return s.emitCheckedOut(ctx, tx, actor, visit)
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncTransition("visit_fast_path")
	logCtx := s.logg.WithFields(s.logCtx(ctx, actor), map[string]any{
		"visit_id":          visit.ID.String(),
		"potential_id":      leadID.String(),
		"distance_m":        visit.DistanceFromDealer,
		"geofence_bypassed": true,
	})
	s.logg.Info(logCtx, "visit.fast_path")
	dto := FromModel(visit)
	return &dto, nil
}
