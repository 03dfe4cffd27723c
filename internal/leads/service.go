package leads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fieldops-backend/internal/authz"
	"github.com/angelmondragon/fieldops-backend/pkg/db/models"
	"github.com/angelmondragon/fieldops-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldops-backend/pkg/errors"
	"github.com/angelmondragon/fieldops-backend/pkg/locks"
	"github.com/angelmondragon/fieldops-backend/pkg/logger"
	"github.com/angelmondragon/fieldops-backend/pkg/maps"
	"github.com/angelmondragon/fieldops-backend/pkg/outbox"
	"github.com/angelmondragon/fieldops-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type leadRepository interface {
	FindByID(ctx context.Context, companyID, id uuid.UUID) (*models.PotentialDealer, error)
	FindByIDTx(tx *gorm.DB, companyID, id uuid.UUID) (*models.PotentialDealer, error)
	FindByPlaceIDsTx(tx *gorm.DB, companyID uuid.UUID, placeIDs []string) ([]models.PotentialDealer, error)
	InsertIgnoreTx(tx *gorm.DB, rows []models.PotentialDealer) error
	AssignTx(tx *gorm.DB, id, assignee, assignedBy uuid.UUID, at time.Time) error
	List(ctx context.Context, companyID uuid.UUID, filter ListFilter) ([]models.PotentialDealer, error)
}

type representativeLookup interface {
	FindByIDTx(tx *gorm.DB, id uuid.UUID) (*models.Representative, error)
}

// Service covers lead discovery persistence and the assignment workflow.
type Service interface {
	// EnsureByPlacesTx materializes unseen places as potential dealers and
	// returns the rows for every given place keyed by place id.
	EnsureByPlacesTx(ctx context.Context, tx *gorm.DB, actor authz.Actor, sessionID *uuid.UUID, places []maps.Place) (map[string]models.PotentialDealer, error)
	AssignLead(ctx context.Context, actor authz.Actor, leadID, repID uuid.UUID) (*LeadDTO, error)
	ListAssigned(ctx context.Context, actor authz.Actor) ([]LeadDTO, error)
	ListLeads(ctx context.Context, actor authz.Actor, filter ListFilter) ([]LeadDTO, error)
}

type service struct {
	repo   leadRepository
	reps   representativeLookup
	tx     txRunner
	outbox outboxPublisher
	locker locks.Locker
	logg   *logger.Logger
	now    func() time.Time
}

func NewService(repo leadRepository, reps representativeLookup, tx txRunner, outbox outboxPublisher, locker locks.Locker, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("lead repository required")
	}
	if reps == nil {
		return nil, fmt.Errorf("representative lookup required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if locker == nil {
		return nil, fmt.Errorf("locker required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:   repo,
		reps:   reps,
		tx:     tx,
		outbox: outbox,
		locker: locker,
		logg:   logg,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) EnsureByPlacesTx(ctx context.Context, tx *gorm.DB, actor authz.Actor, sessionID *uuid.UUID, places []maps.Place) (map[string]models.PotentialDealer, error) {
	out := make(map[string]models.PotentialDealer, len(places))
	if len(places) == 0 {
		return out, nil
	}

	placeIDs := make([]string, 0, len(places))
	for _, p := range places {
		placeIDs = append(placeIDs, p.PlaceID)
	}
	existing, err := s.repo.FindByPlaceIDsTx(tx, actor.CompanyID, placeIDs)
	if err != nil {
		return nil, err
	}
	known := make(map[string]struct{}, len(existing))
	for _, row := range existing {
		known[row.PlaceID] = struct{}{}
	}

	now := s.now()
	candidates := make([]models.PotentialDealer, 0, len(places))
	created := make(map[uuid.UUID]struct{})
	for _, p := range places {
		if _, ok := known[p.PlaceID]; ok {
			continue
		}
		known[p.PlaceID] = struct{}{}
		row := models.PotentialDealer{
			ID:               uuid.New(),
			CompanyID:        actor.CompanyID,
			PlaceID:          p.PlaceID,
			PlaceName:        p.Name,
			Lat:              p.Location.Lat,
			Lng:              p.Location.Lng,
			Address:          nonEmpty(p.FormattedAddress),
			State:            nonEmpty(p.State),
			City:             nonEmpty(p.City),
			FoundBy:          actor.UserID,
			FoundInSessionID: sessionID,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		candidates = append(candidates, row)
		created[row.ID] = struct{}{}
	}
	if err := s.repo.InsertIgnoreTx(tx, candidates); err != nil {
		return nil, err
	}

	rows, err := s.repo.FindByPlaceIDsTx(tx, actor.CompanyID, placeIDs)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.PlaceID] = row
		if _, isNew := created[row.ID]; !isNew {
			continue
		}
		if err := s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLeadDiscovered,
			AggregateType: enums.AggregatePotentialDealer,
			AggregateID:   row.ID,
			Actor:         actor.OutboxRef(),
			OccurredAt:    now,
			Data: payloads.LeadDiscoveredEvent{
				PotentialDealerID: row.ID,
				CompanyID:         row.CompanyID,
				PlaceID:           row.PlaceID,
				PlaceName:         row.PlaceName,
				FoundBy:           row.FoundBy,
				FoundInSessionID:  row.FoundInSessionID,
			},
		}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *service) AssignLead(ctx context.Context, actor authz.Actor, leadID, repID uuid.UUID) (*LeadDTO, error) {
	if err := authz.Require(actor, authz.CapAssignLead, authz.Scope{CompanyID: actor.CompanyID}); err != nil {
		return nil, err
	}

	var result *models.PotentialDealer
	err := locks.WithLock(ctx, s.locker, locks.ScopeLead, leadID.String(), func() error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			lead, err := s.repo.FindByIDTx(tx, actor.CompanyID, leadID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.NotFound(pkgerrors.ReasonLeadNotFound, "lead not found")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load lead")
			}

			target, err := s.reps.FindByIDTx(tx, repID)
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load representative")
			}
			if target == nil || target.CompanyID != actor.CompanyID || target.Role != enums.RoleSalesRep || !target.IsActive {
				return pkgerrors.NotFound(pkgerrors.ReasonRepresentativeNotFound, "target is not an active sales representative")
			}

			previous := lead.AssignedTo
			now := s.now()
			if err := s.repo.AssignTx(tx, lead.ID, repID, actor.UserID, now); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign lead")
			}
			lead.IsAssigned = true
			lead.AssignedTo = &repID
			lead.AssignedAt = &now
			lead.AssignedBy = &actor.UserID
			result = lead

			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventLeadAssigned,
				AggregateType: enums.AggregatePotentialDealer,
				AggregateID:   lead.ID,
				Actor:         actor.OutboxRef(),
				OccurredAt:    now,
				Data: payloads.LeadAssignedEvent{
					PotentialDealerID: lead.ID,
					CompanyID:         lead.CompanyID,
					AssignedTo:        repID,
					AssignedBy:        actor.UserID,
					AssignedAt:        now,
					PreviousAssignee:  previous,
				},
			})
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"lead_id":           result.ID.String(),
		"representative_id": repID.String(),
		"assigned_by":       actor.UserID.String(),
	})
	s.logg.Info(logCtx, "lead.assigned")

	dto := FromModel(result)
	return &dto, nil
}

func (s *service) ListAssigned(ctx context.Context, actor authz.Actor) ([]LeadDTO, error) {
	if err := authz.Require(actor, authz.CapFieldWork, authz.Self(actor)); err != nil {
		return nil, err
	}
	assigned := true
	rows, err := s.repo.List(ctx, actor.CompanyID, ListFilter{Assigned: &assigned, AssignedTo: &actor.UserID})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list assigned leads")
	}
	return fromModels(rows), nil
}

// ListLeads returns company leads for management and the caller's own
// discoveries for representatives.
func (s *service) ListLeads(ctx context.Context, actor authz.Actor, filter ListFilter) ([]LeadDTO, error) {
	if err := authz.Require(actor, authz.CapViewLeads, authz.Scope{CompanyID: actor.CompanyID}); err != nil {
		return nil, err
	}
	if !actor.Role.IsManagement() {
		filter.FoundBy = &actor.UserID
	}
	rows, err := s.repo.List(ctx, actor.CompanyID, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list leads")
	}
	return fromModels(rows), nil
}

func nonEmpty(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
