package dealers

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
	"github.com/angelmondragon/fieldops-backend/pkg/logger"
	"github.com/angelmondragon/fieldops-backend/pkg/maps"
)

type dealerRepository interface {
	Create(ctx context.Context, dealer *models.Dealer) error
	FindByID(ctx context.Context, companyID, id uuid.UUID) (*models.Dealer, error)
	List(ctx context.Context, companyID uuid.UUID, filter ListFilter) ([]models.Dealer, error)
	Update(ctx context.Context, dealer *models.Dealer) error
	Deactivate(ctx context.Context, companyID, id uuid.UUID) error
}

type territoryResolver interface {
	NormalizeReference(ctx context.Context, companyID uuid.UUID, ref string) (*models.Territory, error)
}

type placeResolver interface {
	ResolvePlace(ctx context.Context, placeID string) (*maps.Place, error)
}

// Service manages organization dealers.
type Service interface {
	Create(ctx context.Context, actor authz.Actor, input DealerInput) (*DealerDTO, error)
	Get(ctx context.Context, actor authz.Actor, id uuid.UUID) (*DealerDTO, error)
	List(ctx context.Context, actor authz.Actor, filter ListFilter) ([]DealerDTO, error)
	Update(ctx context.Context, actor authz.Actor, id uuid.UUID, input DealerInput) (*DealerDTO, error)
	Delete(ctx context.Context, actor authz.Actor, id uuid.UUID) error
}

type service struct {
	repo        dealerRepository
	territories territoryResolver
	places      placeResolver
	logg        *logger.Logger
}

// NewService wires the dealer service. places may be nil, in which case
// every dealer write must carry a location.
func NewService(repo dealerRepository, territories territoryResolver, places placeResolver, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("dealer repository required")
	}
	if territories == nil {
		return nil, fmt.Errorf("territory resolver required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, territories: territories, places: places, logg: logg}, nil
}

func (s *service) Create(ctx context.Context, actor authz.Actor, input DealerInput) (*DealerDTO, error) {
	if err := authz.Require(actor, authz.CapManageCompany, authz.Scope{CompanyID: actor.CompanyID}); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	dealer := &models.Dealer{CompanyID: actor.CompanyID, IsActive: true, NextVisitDue: &now}
	if err := s.apply(ctx, dealer, input); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, dealer); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "a dealer already uses this place_id")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create dealer")
	}
	dto := FromModel(dealer)
	return &dto, nil
}

func (s *service) Get(ctx context.Context, actor authz.Actor, id uuid.UUID) (*DealerDTO, error) {
	dealer, err := s.load(ctx, actor.CompanyID, id)
	if err != nil {
		return nil, err
	}
	dto := FromModel(dealer)
	return &dto, nil
}

func (s *service) List(ctx context.Context, actor authz.Actor, filter ListFilter) ([]DealerDTO, error) {
	rows, err := s.repo.List(ctx, actor.CompanyID, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list dealers")
	}
	out := make([]DealerDTO, 0, len(rows))
	for i := range rows {
		out = append(out, FromModel(&rows[i]))
	}
	return out, nil
}

func (s *service) Update(ctx context.Context, actor authz.Actor, id uuid.UUID, input DealerInput) (*DealerDTO, error) {
	if err := authz.Require(actor, authz.CapManageCompany, authz.Scope{CompanyID: actor.CompanyID}); err != nil {
		return nil, err
	}
	dealer, err := s.load(ctx, actor.CompanyID, id)
	if err != nil {
		return nil, err
	}
	if err := s.apply(ctx, dealer, input); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, dealer); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "a dealer already uses this place_id")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update dealer")
	}
	dto := FromModel(dealer)
	return &dto, nil
}

func (s *service) Delete(ctx context.Context, actor authz.Actor, id uuid.UUID) error {
	if err := authz.Require(actor, authz.CapManageCompany, authz.Scope{CompanyID: actor.CompanyID}); err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, actor.CompanyID, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.NotFound(pkgerrors.ReasonDealerNotFound, "dealer not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete dealer")
	}
	return nil
}

func (s *service) load(ctx context.Context, companyID, id uuid.UUID) (*models.Dealer, error) {
	dealer, err := s.repo.FindByID(ctx, companyID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.NotFound(pkgerrors.ReasonDealerNotFound, "dealer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load dealer")
	}
	return dealer, nil
}

func (s *service) apply(ctx context.Context, dealer *models.Dealer, input DealerInput) error {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	priority := input.Priority
	if priority == 0 {
		priority = 1
	}
	if priority < 1 || priority > 3 {
		return pkgerrors.New(pkgerrors.CodeValidation, "priority must be between 1 and 3")
	}
	frequency := input.VisitFrequency
	if frequency == "" {
		frequency = enums.VisitFrequencyWeekly
	}
	if !frequency.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid visit_frequency")
	}

	state, city, address := input.State, input.City, input.Address
	location := input.Location
	placeID := trimmedPtr(input.PlaceID)

	if location == nil {
		if placeID == nil {
			return pkgerrors.Validation(pkgerrors.ReasonInvalidLocation, "location or place_id is required", nil)
		}
		place, err := s.resolvePlace(ctx, *placeID)
		if err != nil {
			return err
		}
		location = &place.Location
		if address == nil && place.FormattedAddress != "" {
			address = &place.FormattedAddress
		}
		if state == nil && place.State != "" {
			state = &place.State
		}
		if city == nil && place.City != "" {
			city = &place.City
		}
	}
	if err := location.Validate(); err != nil {
		return err
	}

	dealer.TerritoryID = nil
	if input.TerritoryRef != nil {
		territory, err := s.territories.NormalizeReference(ctx, dealer.CompanyID, *input.TerritoryRef)
		if err != nil {
			return err
		}
		id := territory.ID
		dealer.TerritoryID = &id
		state, city = territory.State, territory.City
	}

	dealer.Name = name
	dealer.DealerType = strings.TrimSpace(input.DealerType)
	dealer.CategoryMapping = input.CategoryMapping
	dealer.Lat = location.Lat
	dealer.Lng = location.Lng
	dealer.Address = address
	dealer.State = state
	dealer.City = city
	dealer.VisitFrequency = frequency
	dealer.Priority = priority
	dealer.ContactPerson = input.ContactPerson
	dealer.Phone = input.Phone
	dealer.PlaceID = placeID
	return nil
}

func (s *service) resolvePlace(ctx context.Context, placeID string) (*maps.Place, error) {
	if s.places == nil {
		return nil, pkgerrors.Validation(pkgerrors.ReasonInvalidLocation, "location is required when places lookup is disabled", nil)
	}
	place, err := s.places.ResolvePlace(ctx, placeID)
	if err != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"place_id": placeID, "error": err.Error()}), "dealer.place_resolve_failed")
		return nil, err
	}
	return place, nil
}

func trimmedPtr(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
