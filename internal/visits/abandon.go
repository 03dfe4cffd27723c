package visits

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fieldops-backend/internal/authz"
	"github.com/angelmondragon/fieldops-backend/pkg/db/models"
	"github.com/angelmondragon/fieldops-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldops-backend/pkg/errors"
	"github.com/angelmondragon/fieldops-backend/pkg/geo"
	"github.com/angelmondragon/fieldops-backend/pkg/locks"
	"github.com/angelmondragon/fieldops-backend/pkg/outbox"
	"github.com/angelmondragon/fieldops-backend/pkg/outbox/payloads"
)

func (s *service) ForceCheckout(ctx context.Context, actor authz.Actor, input ForceCheckoutInput) (*VisitDTO, error) {
	targetID := actor.UserID
	if input.RepresentativeID != nil {
		targetID = *input.RepresentativeID
	}
	if err := authz.Require(actor, authz.CapForceCheckout, authz.Scope{CompanyID: actor.CompanyID, RepresentativeID: targetID}); err != nil {
		return nil, err
	}
	if input.Location != nil {
		if err := input.Location.Validate(); err != nil {
			return nil, err
		}
	}

	var abandoned *models.Visit
	err := locks.WithLock(ctx, s.locker, locks.ScopeRepresentative, targetID.String(), func() error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			if targetID != actor.UserID {
				rep, err := s.reps.FindByIDTx(tx, targetID)
				if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load representative")
				}
				if rep == nil || rep.CompanyID != actor.CompanyID {
					return pkgerrors.NotFound(pkgerrors.ReasonRepresentativeNotFound, "representative not found")
				}
			}

			var err error
			abandoned, err = s.abandonTx(ctx, tx, actor, targetID, input.Location)
			if err != nil {
				return err
			}
			if abandoned == nil {
				return pkgerrors.StateConflict(pkgerrors.ReasonNoOpenVisit, "no open visit to check out", nil)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncTransition("visit_abandoned")
	logCtx := s.logg.WithFields(s.logCtx(ctx, actor), map[string]any{
		"visit_id":                 abandoned.ID.String(),
		"target_representative_id": targetID.String(),
	})
	s.logg.Info(logCtx, "visit.abandoned")
	dto := FromModel(abandoned)
	return &dto, nil
}

// AbandonOpenVisitTx closes repID's open visit as abandoned inside tx. It
// returns nil when no visit is open. Callers hold the representative lock.
func (s *service) AbandonOpenVisitTx(ctx context.Context, tx *gorm.DB, actor authz.Actor, repID uuid.UUID) (*models.Visit, error) {
	return s.abandonTx(ctx, tx, actor, repID, nil)
}

func (s *service) abandonTx(ctx context.Context, tx *gorm.DB, actor authz.Actor, repID uuid.UUID, location *geo.Point) (*models.Visit, error) {
	open, err := s.visits.FindOpenByRepTx(tx, repID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load open visit")
	}

	now := s.now()
	ok, err := s.visits.CloseTx(tx, open.ID, CloseFields{
		CheckOutTime:     now,
		Location:         location,
		Outcome:          enums.OutcomeAbandoned,
		TimeSpentMinutes: minutesBetween(open.CheckInTime, now),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "abandon visit")
	}
	if !ok {
		return nil, nil
	}

	closed, err := s.visits.FindByIDTx(tx, open.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload visit")
	}
	err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventVisitAbandoned,
		AggregateType: enums.AggregateVisit,
		AggregateID:   closed.ID,
		Actor:         actor.OutboxRef(),
		OccurredAt:    now,
		Data: payloads.VisitAbandonedEvent{
			VisitID:          closed.ID,
			CompanyID:        closed.CompanyID,
			RepresentativeID: closed.RepresentativeID,
			SessionID:        closed.MarketSessionID,
			DealerRef:        closed.DealerRef,
			AbandonedBy:      actor.UserID,
			CheckOutTime:     now,
		},
	})
	if err != nil {
		return nil, err
	}
	return closed, nil
}
